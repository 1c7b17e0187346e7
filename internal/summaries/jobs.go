package summaries

import (
	"context"
	"fmt"

	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
	"github.com/google/uuid"
	"go.uber.org/multierr"
)

const (
	JobSummarizePush        = "summaries.push"
	JobSummarizePullRequest = "summaries.pull_request"
)

// PushPayload carries the commits discovered from one push delivery.
type PushPayload struct {
	EventID   uuid.UUID   `json:"event_id"`
	CommitIDs []uuid.UUID `json:"commit_ids"`
}

type PullRequestPayload struct {
	EventID       uuid.UUID `json:"event_id"`
	PullRequestID uuid.UUID `json:"pull_request_id"`
}

type eventTracker interface {
	MarkAttempt(ctx context.Context, id uuid.UUID) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, cause error) error
}

// Jobs adapts the pipeline to scheduler handlers and settles the originating
// webhook event once a run ends.
type Jobs struct {
	pipeline *Pipeline
	events   eventTracker
	logg     *logger.Logger
}

func NewJobs(pipeline *Pipeline, events eventTracker, logg *logger.Logger) (*Jobs, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline required")
	}
	if events == nil {
		return nil, fmt.Errorf("event store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Jobs{pipeline: pipeline, events: events, logg: logg}, nil
}

// Register wires the summarization handlers into reg.
func (j *Jobs) Register(reg *scheduler.Registry) error {
	return multierr.Combine(
		reg.Register(JobSummarizePush, scheduler.HandlerFunc(j.handlePush)),
		reg.Register(JobSummarizePullRequest, scheduler.HandlerFunc(j.handlePullRequest)),
	)
}

// handlePush summarizes every commit of the push. One failing commit fails the
// event, the rest are still attempted.
func (j *Jobs) handlePush(ctx context.Context, job scheduler.Job) error {
	var payload PushPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	j.begin(ctx, payload.EventID)

	var errs error
	for _, id := range payload.CommitIDs {
		if _, err := j.pipeline.SummarizeCommit(ctx, id); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("commit %s: %w", id, err))
		}
	}
	return j.settle(ctx, payload.EventID, errs)
}

func (j *Jobs) handlePullRequest(ctx context.Context, job scheduler.Job) error {
	var payload PullRequestPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	j.begin(ctx, payload.EventID)
	_, err := j.pipeline.SummarizePullRequest(ctx, payload.PullRequestID)
	return j.settle(ctx, payload.EventID, err)
}

func (j *Jobs) begin(ctx context.Context, eventID uuid.UUID) {
	if eventID == uuid.Nil {
		return
	}
	if err := j.events.MarkAttempt(ctx, eventID); err != nil {
		j.logg.Warn(j.logg.WithField(ctx, "error", err.Error()), "mark event attempt failed")
	}
}

// settle records the terminal event status. The run error is returned unchanged so
// the dispatcher marks the job failed too.
func (j *Jobs) settle(ctx context.Context, eventID uuid.UUID, runErr error) error {
	if eventID == uuid.Nil {
		return runErr
	}
	status := enums.EventStatusSuccess
	if runErr != nil {
		status = enums.EventStatusFailed
	}
	if err := j.events.UpdateStatus(ctx, eventID, status, runErr); err != nil {
		return multierr.Append(runErr, err)
	}
	return runErr
}
