package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
)

const (
	defaultWorkers       = 4
	defaultBatchSize     = 10
	defaultPollInterval  = 5 * time.Second
	defaultLease         = 10 * time.Minute
	maxBackoff           = time.Minute
	jitterWindow         = 250 * time.Millisecond
	completionTimeout    = 10 * time.Second
	maxLastErrorLength   = 2000
	missingHandlerFormat = "no handler registered for job %q"
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type claimStore interface {
	ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int, now time.Time) ([]models.ScheduledJob, error)
	Complete(ctx context.Context, id uuid.UUID, owner string, c completion) (bool, error)
}

// WakeSource delivers best-effort wake-ups between poll ticks.
type WakeSource interface {
	Wakeups(ctx context.Context) (<-chan struct{}, error)
}

type DispatcherParams struct {
	Store        claimStore
	Registry     *Registry
	Logger       *logger.Logger
	Metrics      *metrics.JobMetrics
	Wake         WakeSource
	Ready        []func(context.Context) error
	Owner        string
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	Lease        time.Duration
	Now          func() time.Time
}

// Dispatcher claims due jobs and runs them on a bounded worker pool. A job body
// that fails is recorded as failed and never retried; only an expired lease
// leads to redelivery.
type Dispatcher struct {
	store        claimStore
	registry     *Registry
	logg         *logger.Logger
	metrics      *metrics.JobMetrics
	wake         WakeSource
	ready        []func(context.Context) error
	owner        string
	workers      int
	batchSize    int
	pollInterval time.Duration
	lease        time.Duration
	now          func() time.Time
}

func NewDispatcher(params DispatcherParams) (*Dispatcher, error) {
	if params.Store == nil {
		return nil, errors.New("job store is required")
	}
	if params.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}

	owner := params.Owner
	if owner == "" {
		host, _ := os.Hostname()
		owner = fmt.Sprintf("%s-%s", host, uuid.NewString()[:8])
	}
	workers := params.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	poll := params.PollInterval
	if poll <= 0 {
		poll = defaultPollInterval
	}
	lease := params.Lease
	if lease <= 0 {
		lease = defaultLease
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}

	return &Dispatcher{
		store:        params.Store,
		registry:     params.Registry,
		logg:         params.Logger,
		metrics:      params.Metrics,
		wake:         params.Wake,
		ready:        params.Ready,
		owner:        owner,
		workers:      workers,
		batchSize:    batch,
		pollInterval: poll,
		lease:        lease,
		now:          now,
	}, nil
}

func (d *Dispatcher) Owner() string {
	return d.owner
}

// Run polls until ctx is canceled.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for i, ping := range d.ready {
		if err := ping(ctx); err != nil {
			d.logg.Error(ctx, fmt.Sprintf("dispatcher dependency %d ping failed", i), err)
			return fmt.Errorf("dispatcher readiness: %w", err)
		}
	}

	var wake <-chan struct{}
	if d.wake != nil {
		ch, err := d.wake.Wakeups(ctx)
		if err != nil {
			d.logg.Warn(d.logg.WithField(ctx, "error", err.Error()), "scheduler wake-ups unavailable, polling only")
		} else {
			wake = ch
		}
	}

	ctx = d.logg.WithField(ctx, "lease_owner", d.owner)
	d.logg.Info(ctx, "dispatcher started")
	backoff := d.pollInterval

	for {
		select {
		case <-ctx.Done():
			d.logg.Info(ctx, "dispatcher context canceled")
			return ctx.Err()
		default:
		}

		claimed, err := d.RunOnce(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logg.Error(ctx, "dispatcher claim error", err)
			backoff = nextBackoff(backoff, d.pollInterval, maxBackoff)
			if err := sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}
		backoff = d.pollInterval

		if claimed >= d.claimLimit() {
			continue
		}

		var closed bool
		if closed, err = d.idle(ctx, wake); err != nil {
			return err
		}
		if closed {
			d.logg.Warn(ctx, "scheduler wake-up subscription closed, polling only")
			wake = nil
		}
	}
}

// RunOnce claims one batch and blocks until every claimed job finished. It
// returns how many jobs were claimed. A batch never exceeds the worker count,
// so no claimed job waits for a slot while its lease runs down.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	jobs, err := d.store.ClaimDue(ctx, d.owner, d.lease, d.claimLimit(), d.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("claim due jobs: %w", err)
	}
	if len(jobs) == 0 {
		return 0, nil
	}
	d.metrics.AddClaimed(len(jobs))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.workers)
	for i := range jobs {
		job := jobs[i]
		group.Go(func() error {
			d.execute(groupCtx, job)
			return nil
		})
	}
	_ = group.Wait()
	return len(jobs), nil
}

func (d *Dispatcher) execute(ctx context.Context, row models.ScheduledJob) {
	job := Job{
		ID:           row.ID,
		Name:         row.JobName,
		Reference:    row.Reference,
		Payload:      row.Payload,
		Attempt:      row.AttemptCount,
		ScheduledFor: row.RunAt,
		Recurring:    row.IsRecurring(),
	}
	ctx = d.logg.WithJob(ctx, job.Name, job.ID.String(), job.Attempt)

	budget := d.lease
	if row.LeaseExpiresAt != nil {
		budget = min(budget, row.LeaseExpiresAt.Sub(d.now()))
	}
	if budget <= 0 {
		d.logg.Warn(ctx, "job lease expired before it started, leaving it for redelivery")
		return
	}

	started := d.now()
	err := d.invoke(ctx, job, budget)
	elapsed := d.now().Sub(started)
	d.metrics.ObserveDuration(job.Name, elapsed)

	finished := d.now().UTC()
	result := completion{Status: enums.JobStatusSucceeded, Now: finished}
	if err != nil {
		result.Status = enums.JobStatusFailed
		msg := pkgerrors.Brief(err, maxLastErrorLength)
		result.LastError = &msg
	}
	if job.Recurring {
		next, nextErr := NextRun(*row.CronExpression, finished)
		if nextErr != nil {
			d.logg.Error(ctx, "recurring job has an unusable expression", nextErr)
			result.Status = enums.JobStatusFailed
			msg := pkgerrors.Brief(nextErr, maxLastErrorLength)
			result.LastError = &msg
		} else {
			result.NextRunAt = &next
		}
	}

	completeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), completionTimeout)
	defer cancel()
	updated, completeErr := d.store.Complete(completeCtx, job.ID, d.owner, result)

	logCtx := d.logg.WithField(ctx, "duration_ms", elapsed.Milliseconds())
	switch {
	case completeErr != nil:
		d.logg.Error(logCtx, "failed to record job completion", completeErr)
	case !updated:
		d.logg.Warn(logCtx, "job lease lost before completion")
	}

	if err != nil {
		d.metrics.IncFailure(job.Name)
		logCtx = d.logg.WithFields(logCtx, map[string]any{
			"error_code": pkgerrors.CodeOf(err),
			"retryable":  pkgerrors.Retryable(err),
		})
		d.logg.Error(logCtx, "job failed", err)
		return
	}
	d.metrics.IncSuccess(job.Name)
	d.logg.Info(logCtx, "job succeeded")
}

// invoke runs the handler with at most budget, the time left on the lease.
func (d *Dispatcher) invoke(ctx context.Context, job Job, budget time.Duration) (err error) {
	handler, ok := d.registry.Lookup(job.Name)
	if !ok {
		return fmt.Errorf(missingHandlerFormat, job.Name)
	}

	jobCtx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.logg.Debug(d.logg.WithField(ctx, "stack", string(debug.Stack())), "job panicked")
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return handler.Handle(jobCtx, job)
}

// idle waits for the poll interval or a wake-up. closed reports that the wake
// channel is gone.
func (d *Dispatcher) idle(ctx context.Context, wake <-chan struct{}) (closed bool, err error) {
	timer := time.NewTimer(withJitter(d.pollInterval))
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case <-timer.C:
		return false, nil
	case _, ok := <-wake:
		return !ok, nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func (d *Dispatcher) claimLimit() int {
	return min(d.batchSize, d.workers)
}
