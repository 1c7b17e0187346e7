package summaries

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/llm"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxInstructionLength bounds the free-text correction a user may attach to a
// regeneration request.
const MaxInstructionLength = 2000

// DiffFetcher loads change sets from the code host.
type DiffFetcher interface {
	CommitDiff(ctx context.Context, installationID int64, owner, repo, sha string) (*github.Diff, error)
	PullRequestDiff(ctx context.Context, installationID int64, owner, repo string, number int) (*github.Diff, error)
}

// Generator turns a prompt into text.
type Generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type repositoryReader interface {
	Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Repository, error)
}

type commitStore interface {
	Load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Commit, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Commit, error)
	ApplySummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int) (*models.Commit, error)
}

type pullRequestStore interface {
	Load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PullRequest, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.PullRequest, error)
	ApplySummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int) (*models.PullRequest, error)
}

type PipelineParams struct {
	Tx           txRunner
	Repositories repositoryReader
	Commits      commitStore
	PullRequests pullRequestStore
	Diffs        DiffFetcher
	Generator    Generator
	Logger       *logger.Logger
	Metrics      *metrics.PipelineMetrics
	Config       config.SummariesConfig
}

// Pipeline fetches a diff, filters it, asks the model for a summary and stores the
// result. Collaborator calls never run inside a database transaction.
type Pipeline struct {
	tx           txRunner
	repositories repositoryReader
	commits      commitStore
	pullRequests pullRequestStore
	diffs        DiffFetcher
	generator    Generator
	logg         *logger.Logger
	metrics      *metrics.PipelineMetrics
	budget       promptBudget
}

func NewPipeline(params PipelineParams) (*Pipeline, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repositories == nil:
		return nil, fmt.Errorf("repositories service required")
	case params.Commits == nil:
		return nil, fmt.Errorf("commits service required")
	case params.PullRequests == nil:
		return nil, fmt.Errorf("pull requests service required")
	case params.Diffs == nil:
		return nil, fmt.Errorf("diff fetcher required")
	case params.Generator == nil:
		return nil, fmt.Errorf("generator required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Pipeline{
		tx:           params.Tx,
		repositories: params.Repositories,
		commits:      params.Commits,
		pullRequests: params.PullRequests,
		diffs:        params.Diffs,
		generator:    params.Generator,
		logg:         params.Logger,
		metrics:      params.Metrics,
		budget: promptBudget{
			maxFileDiffBytes: params.Config.MaxFileDiffBytes,
			maxFiles:         params.Config.MaxPromptFiles,
		}.normalized(),
	}, nil
}

type regeneration struct {
	previous    string
	instruction string
}

type run struct {
	kind    string
	title   string
	message string
	regen   *regeneration
	fetch   func(ctx context.Context) (*github.Diff, error)
	persist func(ctx context.Context, tx *gorm.DB, summary string, diff *github.Diff) error
}

// SummarizeCommit runs the pipeline for a stored commit.
func (p *Pipeline) SummarizeCommit(ctx context.Context, commitID uuid.UUID) (*models.Commit, error) {
	commit, err := p.commits.Load(ctx, nil, commitID)
	if err != nil {
		return nil, stageErr(StageDiscovered, err)
	}
	return p.summarizeCommit(ctx, commit, nil)
}

// RegenerateCommit replaces the caller's commit summary, keeping the old one as
// previous_summary.
func (p *Pipeline) RegenerateCommit(ctx context.Context, userID, commitID uuid.UUID, instruction string) (*models.Commit, error) {
	instruction, err := normalizeInstruction(instruction)
	if err != nil {
		return nil, err
	}
	commit, err := p.commits.Get(ctx, userID, commitID)
	if err != nil {
		return nil, err
	}
	return p.summarizeCommit(ctx, commit, &regeneration{previous: valueOf(commit.Summary), instruction: instruction})
}

func (p *Pipeline) summarizeCommit(ctx context.Context, commit *models.Commit, regen *regeneration) (*models.Commit, error) {
	repo, err := p.repositories.Get(ctx, nil, commit.RepositoryID)
	if err != nil {
		return nil, stageErr(StageDiscovered, err)
	}
	ctx = p.logg.WithFields(p.logg.WithRepository(ctx, repo.FullName), map[string]any{
		"commit_id": commit.ID.String(),
		"sha":       commit.SHA,
	})

	var stored *models.Commit
	err = p.execute(ctx, run{
		kind:    "commit",
		message: commit.Message,
		regen:   regen,
		fetch: func(ctx context.Context) (*github.Diff, error) {
			return p.diffs.CommitDiff(ctx, repo.InstallationID, repo.Owner, repo.Name, commit.SHA)
		},
		persist: func(ctx context.Context, tx *gorm.DB, summary string, diff *github.Diff) error {
			var err error
			stored, err = p.commits.ApplySummary(ctx, tx, commit.ID, summary, diff.Additions, diff.Deletions)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// SummarizePullRequest runs the pipeline for a stored pull request.
func (p *Pipeline) SummarizePullRequest(ctx context.Context, pullRequestID uuid.UUID) (*models.PullRequest, error) {
	pr, err := p.pullRequests.Load(ctx, nil, pullRequestID)
	if err != nil {
		return nil, stageErr(StageDiscovered, err)
	}
	return p.summarizePullRequest(ctx, pr, nil)
}

func (p *Pipeline) RegeneratePullRequest(ctx context.Context, userID, pullRequestID uuid.UUID, instruction string) (*models.PullRequest, error) {
	instruction, err := normalizeInstruction(instruction)
	if err != nil {
		return nil, err
	}
	pr, err := p.pullRequests.Get(ctx, userID, pullRequestID)
	if err != nil {
		return nil, err
	}
	return p.summarizePullRequest(ctx, pr, &regeneration{previous: valueOf(pr.Summary), instruction: instruction})
}

func (p *Pipeline) summarizePullRequest(ctx context.Context, pr *models.PullRequest, regen *regeneration) (*models.PullRequest, error) {
	repo, err := p.repositories.Get(ctx, nil, pr.RepositoryID)
	if err != nil {
		return nil, stageErr(StageDiscovered, err)
	}
	ctx = p.logg.WithFields(p.logg.WithRepository(ctx, repo.FullName), map[string]any{
		"pull_request_id": pr.ID.String(),
		"number":          pr.Number,
	})

	var stored *models.PullRequest
	err = p.execute(ctx, run{
		kind:    "pull_request",
		title:   pr.Title,
		message: pr.Body,
		regen:   regen,
		fetch: func(ctx context.Context) (*github.Diff, error) {
			return p.diffs.PullRequestDiff(ctx, repo.InstallationID, repo.Owner, repo.Name, pr.Number)
		},
		persist: func(ctx context.Context, tx *gorm.DB, summary string, diff *github.Diff) error {
			var err error
			stored, err = p.pullRequests.ApplySummary(ctx, tx, pr.ID, summary, diff.Additions, diff.Deletions)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

func (p *Pipeline) execute(ctx context.Context, r run) error {
	started := time.Now()
	diff, err := r.fetch(ctx)
	p.metrics.ObserveStage(string(StageDiffFetched), time.Since(started))
	if err != nil {
		return p.fail(ctx, StageDiffFetched, pkgerrors.Wrap(fetchCode(err), err, "fetch diff"))
	}
	if diff == nil {
		diff = &github.Diff{}
	}

	kept, excluded := FilterFiles(diff.Files)
	message := r.message
	if strings.TrimSpace(message) == "" {
		message = diff.Message
	}
	data := promptData{
		Kind:      strings.ReplaceAll(r.kind, "_", " "),
		Title:     r.title,
		Message:   message,
		Additions: diff.Additions,
		Deletions: diff.Deletions,
		Files:     kept,
		Omitted:   len(excluded),
		Diff:      renderDiff(kept, p.budget),
	}
	if r.regen != nil {
		data.Regenerate = true
		data.PreviousSummary = r.regen.previous
		data.Instruction = r.regen.instruction
	}
	prompt, err := buildPrompt(data)
	if err != nil {
		return p.fail(ctx, StageFiltered, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build prompt"))
	}

	started = time.Now()
	summary, err := p.generator.Generate(ctx, llm.Request{System: systemPrompt, Prompt: prompt})
	p.metrics.ObserveStage(string(StageSummarized), time.Since(started))
	if err == nil && strings.TrimSpace(summary) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		return p.fail(ctx, StageSummarized, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate summary"))
	}

	started = time.Now()
	err = p.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return r.persist(ctx, tx, strings.TrimSpace(summary), diff)
	})
	p.metrics.ObserveStage(string(StagePersisted), time.Since(started))
	if err != nil {
		return p.fail(ctx, StagePersisted, err)
	}

	p.metrics.IncPersisted(r.kind)
	p.logg.Info(p.logg.WithFields(ctx, map[string]any{
		"files_kept":     len(kept),
		"files_excluded": len(excluded),
		"regenerated":    r.regen != nil,
	}), "summary persisted")
	return nil
}

// fetchCode keeps a vanished commit or pull request from being retried.
func fetchCode(err error) pkgerrors.Code {
	switch {
	case github.IsNotFound(err):
		return pkgerrors.CodeNotFound
	case github.IsRateLimited(err):
		return pkgerrors.CodeRateLimit
	default:
		return pkgerrors.CodeDependency
	}
}

func (p *Pipeline) fail(ctx context.Context, stage Stage, err error) error {
	p.metrics.IncFailure(string(stage))
	p.logg.Error(p.logg.WithField(ctx, "stage", string(stage)), "summarization failed", err)
	return stageErr(stage, err)
}

func normalizeInstruction(instruction string) (string, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "instruction required")
	}
	if utf8.RuneCountInString(instruction) > MaxInstructionLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("instruction must be at most %d characters", MaxInstructionLength))
	}
	return instruction, nil
}

func valueOf(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
