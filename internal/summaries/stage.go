package summaries

import "fmt"

// Stage names a pipeline state. A run walks them in order or stops at failed.
type Stage string

const (
	StageDiscovered  Stage = "discovered"
	StageDiffFetched Stage = "diff_fetched"
	StageFiltered    Stage = "filtered"
	StageSummarized  Stage = "summarized"
	StagePersisted   Stage = "persisted"
	StageFailed      Stage = "failed"
)

// StageError reports the stage a run was attempting when it failed.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("summarize: %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage Stage, err error) error {
	return &StageError{Stage: stage, Err: err}
}
