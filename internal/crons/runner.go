package crons

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const (
	defaultLookback  = 24 * time.Hour
	maxHistoryMsgLen = 1000
)

type commitLister interface {
	ListCommitsSince(ctx context.Context, installationID int64, owner, repo string, since time.Time) ([]github.CommitRef, error)
}

type repositoryScope interface {
	ownershipChecker
	List(ctx context.Context, userID uuid.UUID) ([]models.Repository, error)
}

type commitDiscoverer interface {
	Discover(ctx context.Context, tx *gorm.DB, input commits.DiscoverInput) (*models.Commit, bool, error)
}

type commitSummarizer interface {
	SummarizeCommit(ctx context.Context, commitID uuid.UUID) (*models.Commit, error)
}

type RunnerParams struct {
	Repo         *Repository
	Tx           txRunner
	Repositories repositoryScope
	GitHub       commitLister
	Commits      commitDiscoverer
	Summarizer   commitSummarizer
	Logger       *logger.Logger
	Lookback     time.Duration
	Now          func() time.Time
}

// Runner is the body of the recurring job behind every enabled cron.
type Runner struct {
	repo         *Repository
	tx           txRunner
	repositories repositoryScope
	github       commitLister
	commits      commitDiscoverer
	summarizer   commitSummarizer
	logg         *logger.Logger
	lookback     time.Duration
	now          func() time.Time
}

func NewRunner(params RunnerParams) (*Runner, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("crons repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Repositories == nil:
		return nil, fmt.Errorf("repositories service required")
	case params.GitHub == nil:
		return nil, fmt.Errorf("github client required")
	case params.Commits == nil:
		return nil, fmt.Errorf("commits service required")
	case params.Summarizer == nil:
		return nil, fmt.Errorf("summarizer required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	lookback := params.Lookback
	if lookback <= 0 {
		lookback = defaultLookback
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Runner{
		repo:         params.Repo,
		tx:           params.Tx,
		repositories: params.Repositories,
		github:       params.GitHub,
		commits:      params.Commits,
		summarizer:   params.Summarizer,
		logg:         params.Logger,
		lookback:     lookback,
		now:          now,
	}, nil
}

func (r *Runner) Register(reg *scheduler.Registry) error {
	return reg.Register(JobRunCron, scheduler.HandlerFunc(r.handle))
}

// handle ignores firings of jobs that no longer back their cron, which happens
// when a cancel races an already leased run.
func (r *Runner) handle(ctx context.Context, job scheduler.Job) error {
	var payload RunPayload
	if err := job.Decode(&payload); err != nil {
		return err
	}
	ctx = r.logg.WithField(ctx, "cron_id", payload.CronID.String())

	cron, err := r.repo.FindByID(ctx, nil, payload.CronID)
	if err != nil {
		if db.IsNotFound(err) {
			r.logg.Warn(ctx, "cron job fired for a deleted cron")
			return nil
		}
		return err
	}
	if cron.Status != enums.CronStatusEnabled || cron.JobID == nil || *cron.JobID != job.ID {
		r.logg.Warn(ctx, "stale cron job fired, skipping")
		return nil
	}
	_, err = r.RunCron(ctx, cron.ID)
	return err
}

// RunCron discovers commits pushed since the cron's sync cursor in every
// repository of its scope, summarizes the ones lacking a summary and appends a
// history entry. The first run looks back over the configured window.
//
// The cursor only advances when every repository was listed and every commit
// summarized. A failed run keeps it, so the next run lists the same window again
// and picks up the commits that were missed or left without a summary.
func (r *Runner) RunCron(ctx context.Context, cronID uuid.UUID) (*models.CronHistory, error) {
	started := r.now().UTC()
	cron, err := r.repo.FindByID(ctx, nil, cronID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cron not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cron")
	}

	since := started.Add(-r.lookback)
	if cron.SyncedUntil != nil {
		since = cron.SyncedUntil.UTC()
	}

	repos, err := r.scope(ctx, cron)
	var runErr error
	if err != nil {
		runErr = multierr.Append(runErr, err)
	}

	var pending []uuid.UUID
	for _, repo := range repos {
		ids, err := r.discover(ctx, cron, repo, since)
		if err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("%s: %w", repo.FullName, err))
			continue
		}
		pending = append(pending, ids...)
	}

	processed := 0
	for _, id := range pending {
		if _, err := r.summarizer.SummarizeCommit(ctx, id); err != nil {
			runErr = multierr.Append(runErr, fmt.Errorf("commit %s: %w", id, err))
			continue
		}
		processed++
	}

	entry := &models.CronHistory{
		CronID:           cron.ID,
		RunAt:            started,
		Status:           enums.CronRunStatusSuccess,
		Message:          fmt.Sprintf("summarized %d of %d commits across %d repositories", processed, len(pending), len(repos)),
		DurationMs:       r.now().Sub(started).Milliseconds(),
		CommitsProcessed: processed,
	}
	if runErr != nil {
		entry.Status = enums.CronRunStatusFailure
		entry.Message = pkgerrors.Brief(runErr, maxHistoryMsgLen)
	}
	syncedUntil := started
	if runErr != nil {
		syncedUntil = since
	}

	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := r.repo.LockByID(ctx, tx, cron.ID); err != nil {
			return err
		}
		if err := r.repo.AppendHistory(ctx, tx, entry); err != nil {
			return err
		}
		return r.repo.SetLastRun(ctx, tx, cron.ID, started, syncedUntil)
	})
	if err != nil {
		if db.IsNotFound(err) {
			r.logg.Warn(ctx, "cron deleted while running, history dropped")
			return entry, runErr
		}
		return entry, multierr.Append(runErr, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cron run"))
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"cron_id":           cron.ID.String(),
		"commits_processed": processed,
		"duration_ms":       entry.DurationMs,
	})
	if runErr != nil {
		r.logg.Error(logCtx, "cron run failed", runErr)
	} else {
		r.logg.Info(logCtx, "cron run finished")
	}
	return entry, runErr
}

func (r *Runner) scope(ctx context.Context, cron *models.Cron) ([]models.Repository, error) {
	if len(cron.RepositoryIDs) == 0 {
		return r.repositories.List(ctx, cron.UserID)
	}
	return r.repositories.Owned(ctx, nil, cron.UserID, cron.RepositoryIDs)
}

// discover records commits listed since the cutoff and returns the ids still
// lacking a summary.
func (r *Runner) discover(ctx context.Context, cron *models.Cron, repo models.Repository, since time.Time) ([]uuid.UUID, error) {
	refs, err := r.github.ListCommitsSince(ctx, repo.InstallationID, repo.Owner, repo.Name, since)
	if err != nil {
		return nil, err
	}
	if len(refs) == 0 {
		return nil, nil
	}

	var ids []uuid.UUID
	err = r.tx.WithTx(ctx, func(tx *gorm.DB) error {
		ids = ids[:0]
		for _, ref := range refs {
			commit, _, err := r.commits.Discover(ctx, tx, commits.DiscoverInput{
				UserID:       cron.UserID,
				RepositoryID: repo.ID,
				SHA:          ref.SHA,
				Message:      ref.Message,
				AuthorName:   ref.AuthorName,
				AuthorEmail:  ref.AuthorEmail,
				URL:          ref.URL,
				CommittedAt:  ref.CommittedAt,
			})
			if err != nil {
				return err
			}
			if !commit.HasSummary() {
				ids = append(ids, commit.ID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

