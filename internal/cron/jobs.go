package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

const (
	defaultAuditBatchSize = 200
	defaultJobRetention   = 30 * 24 * time.Hour
	defaultStaleEventAge  = 2 * time.Hour
)

type aggregateAuditor interface {
	Namespaces(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Audit(ctx context.Context, namespace uuid.UUID) (*aggregates.AuditReport, error)
	Backfill(ctx context.Context, namespace uuid.UUID) (map[enums.Aggregate]aggregates.Totals, error)
}

type AggregateAuditJobParams struct {
	Logger     *logger.Logger
	Aggregates aggregateAuditor
	BatchSize  int
	// Repair rebuilds drifted namespaces instead of only reporting them.
	Repair bool
}

func NewAggregateAuditJob(params AggregateAuditJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Aggregates == nil:
		return nil, fmt.Errorf("aggregate maintainer required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAuditBatchSize
	}
	return &aggregateAuditJob{logg: params.Logger, aggs: params.Aggregates, batch: batch, repair: params.Repair}, nil
}

type aggregateAuditJob struct {
	logg   *logger.Logger
	aggs   aggregateAuditor
	batch  int
	repair bool
}

func (j *aggregateAuditJob) Name() string { return "aggregate-audit" }

// Run walks every namespace. A failing namespace is recorded and the sweep
// moves on.
func (j *aggregateAuditJob) Run(ctx context.Context) error {
	var (
		after                     uuid.UUID
		scanned, drifted, rebuilt int
		errs                      error
	)
	for {
		ids, err := j.aggs.Namespaces(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, err)
		}
		for _, namespace := range ids {
			scanned++
			report, err := j.aggs.Audit(ctx, namespace)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("audit %s: %w", namespace, err))
				continue
			}
			if !report.Drifted() {
				continue
			}
			drifted++
			j.logg.Warn(j.logg.WithFields(ctx, map[string]any{"namespace": namespace.String(), "repair": j.repair}), "aggregate drift detected")
			if !j.repair {
				continue
			}
			if _, err := j.aggs.Backfill(ctx, namespace); err != nil {
				errs = multierr.Append(errs, fmt.Errorf("backfill %s: %w", namespace, err))
				continue
			}
			rebuilt++
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"namespaces_scanned": scanned,
		"namespaces_drifted": drifted,
		"namespaces_rebuilt": rebuilt,
	}), "aggregate audit complete")
	return errs
}

type jobPurger interface {
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

type JobRetentionJobParams struct {
	Logger    *logger.Logger
	Scheduler jobPurger
	Retention time.Duration
}

func NewJobRetentionJob(params JobRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Scheduler == nil:
		return nil, fmt.Errorf("scheduler required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultJobRetention
	}
	return &jobRetentionJob{logg: params.Logger, scheduler: params.Scheduler, retention: retention, now: time.Now}, nil
}

type jobRetentionJob struct {
	logg      *logger.Logger
	scheduler jobPurger
	retention time.Duration
	now       func() time.Time
}

func (j *jobRetentionJob) Name() string { return "scheduled-job-retention" }

func (j *jobRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	removed, err := j.scheduler.PurgeFinished(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("scheduled job retention: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": removed,
	}), "scheduled job retention complete")
	return nil
}

type staleEventSweeper interface {
	FailStale(ctx context.Context, maxAge time.Duration) (int64, error)
}

type StaleEventJobParams struct {
	Logger *logger.Logger
	Events staleEventSweeper
	MaxAge time.Duration
}

func NewStaleEventJob(params StaleEventJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Events == nil:
		return nil, fmt.Errorf("event service required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = defaultStaleEventAge
	}
	return &staleEventJob{logg: params.Logger, events: params.Events, maxAge: maxAge}, nil
}

type staleEventJob struct {
	logg   *logger.Logger
	events staleEventSweeper
	maxAge time.Duration
}

func (j *staleEventJob) Name() string { return "stale-event-sweep" }

func (j *staleEventJob) Run(ctx context.Context) error {
	failed, err := j.events.FailStale(ctx, j.maxAge)
	if err != nil {
		return err
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"max_age": j.maxAge.String(), "events_failed": failed})
	if failed > 0 {
		j.logg.Warn(logCtx, "stale pending events marked failed")
		return nil
	}
	j.logg.Info(logCtx, "no stale pending events")
	return nil
}
