package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type store interface {
	Insert(ctx context.Context, tx *gorm.DB, job *models.ScheduledJob) error
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ScheduledJob, error)
	Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error)
	CountLiveByReference(ctx context.Context, tx *gorm.DB, reference string) (int64, error)
	PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error)
}

// Notifier announces that new work may be due.
type Notifier interface {
	Notify(ctx context.Context) error
}

type SchedulerParams struct {
	Store    store
	Notifier Notifier
	Logger   *logger.Logger
	Now      func() time.Time
}

// Scheduler persists jobs into scheduled_jobs. Every method accepts an optional
// transaction so callers can enqueue atomically with their own writes.
type Scheduler struct {
	store    store
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

func NewScheduler(params SchedulerParams) (*Scheduler, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("job store required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		store:    params.Store,
		notifier: params.Notifier,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// Schedule enqueues a one-shot job that becomes due after delay.
func (s *Scheduler) Schedule(ctx context.Context, tx *gorm.DB, delay time.Duration, jobName string, payload any) (JobHandle, error) {
	if delay < 0 {
		delay = 0
	}
	return s.enqueue(ctx, tx, jobName, "", payload, s.now().UTC().Add(delay), nil)
}

// ScheduleRecurring enqueues a job that fires on every activation of expression.
// reference identifies the owning record for CountLive.
func (s *Scheduler) ScheduleRecurring(ctx context.Context, tx *gorm.DB, expression, jobName, reference string, payload any) (JobHandle, error) {
	expression = strings.TrimSpace(expression)
	next, err := NextRun(expression, s.now())
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid recurrence")
	}
	return s.enqueue(ctx, tx, jobName, reference, payload, next, &expression)
}

func (s *Scheduler) enqueue(ctx context.Context, tx *gorm.DB, jobName, reference string, payload any, runAt time.Time, expression *string) (JobHandle, error) {
	if strings.TrimSpace(jobName) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "job name required")
	}
	raw, err := encodePayload(payload)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "encode job payload")
	}

	job := &models.ScheduledJob{
		JobName:        jobName,
		Reference:      reference,
		Payload:        raw,
		RunAt:          runAt,
		CronExpression: expression,
		Status:         enums.JobStatusPending,
	}
	if err := s.store.Insert(ctx, tx, job); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert scheduled job")
	}

	s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
		"job":    jobName,
		"job_id": job.ID.String(),
		"run_at": runAt.Format(time.RFC3339),
	}), "job scheduled")
	return job.ID, nil
}

// Cancel marks a live job canceled. It reports whether anything was canceled.
func (s *Scheduler) Cancel(ctx context.Context, tx *gorm.DB, handle JobHandle) (bool, error) {
	if handle == uuid.Nil {
		return false, nil
	}
	canceled, err := s.store.Cancel(ctx, tx, handle, s.now().UTC())
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel scheduled job")
	}
	return canceled, nil
}

// IsLive reports whether the job can still fire.
func (s *Scheduler) IsLive(ctx context.Context, tx *gorm.DB, handle JobHandle) (bool, error) {
	if handle == uuid.Nil {
		return false, nil
	}
	job, err := s.store.FindByID(ctx, tx, handle)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load scheduled job")
	}
	return job.Status.IsLive(), nil
}

// CountLive counts pending or running jobs owned by reference.
func (s *Scheduler) CountLive(ctx context.Context, tx *gorm.DB, reference string) (int64, error) {
	count, err := s.store.CountLiveByReference(ctx, tx, reference)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count live jobs")
	}
	return count, nil
}

// Wake nudges idle dispatchers. Call it after the enqueuing transaction commits;
// a lost wake-up only delays the job until the next poll.
func (s *Scheduler) Wake(ctx context.Context) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "scheduler wake-up failed")
	}
}

// PurgeFinished deletes terminal jobs older than cutoff.
func (s *Scheduler) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	removed, err := s.store.PurgeFinished(ctx, cutoff.UTC())
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge finished jobs")
	}
	return removed, nil
}

func encodePayload(payload any) (json.RawMessage, error) {
	switch v := payload.(type) {
	case nil:
		return json.RawMessage(`{}`), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage(`{}`), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("payload is not valid json")
		}
		return v, nil
	default:
		return json.Marshal(v)
	}
}

// CronReference is the reference used for jobs owned by a cron record.
func CronReference(cronID uuid.UUID) string {
	return "cron:" + cronID.String()
}
