package crons

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/commitscribe-backend/pkg/db/types"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	JobRunCron = "crons.run"

	maxNameLength       = 100
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// RunPayload is stored on the recurring job of an enabled cron.
type RunPayload struct {
	CronID uuid.UUID `json:"cron_id"`
}

type jobScheduler interface {
	ScheduleRecurring(ctx context.Context, tx *gorm.DB, expression, jobName, reference string, payload any) (scheduler.JobHandle, error)
	Cancel(ctx context.Context, tx *gorm.DB, handle scheduler.JobHandle) (bool, error)
	IsLive(ctx context.Context, tx *gorm.DB, handle scheduler.JobHandle) (bool, error)
	CountLive(ctx context.Context, tx *gorm.DB, reference string) (int64, error)
	Wake(ctx context.Context)
}

type aggregateWriter interface {
	Insert(ctx context.Context, tx *gorm.DB, e aggregates.Entry) error
	Delete(ctx context.Context, tx *gorm.DB, aggregate enums.Aggregate, recordID uuid.UUID) error
	Replace(ctx context.Context, tx *gorm.DB, old, next aggregates.Entry) error
}

type ownershipChecker interface {
	Owned(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) ([]models.Repository, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo         *Repository
	Tx           txRunner
	Scheduler    jobScheduler
	Aggregates   aggregateWriter
	Repositories ownershipChecker
	Logger       *logger.Logger
	Now          func() time.Time
}

// Service owns cron records and keeps each one bound to at most one live
// recurring job: enabled crons have exactly one, disabled crons none.
type Service struct {
	repo         *Repository
	tx           txRunner
	scheduler    jobScheduler
	aggregates   aggregateWriter
	repositories ownershipChecker
	logg         *logger.Logger
	now          func() time.Time
}

type CreateInput struct {
	Name          string
	Schedule      string
	RepositoryIDs []uuid.UUID
	Enabled       bool
}

// UpdateInput carries the fields to change; nil fields are left alone.
type UpdateInput struct {
	Name          *string
	Schedule      *string
	RepositoryIDs *[]uuid.UUID
	Status        *enums.CronStatus
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("crons repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Scheduler == nil:
		return nil, fmt.Errorf("scheduler required")
	case params.Aggregates == nil:
		return nil, fmt.Errorf("aggregate maintainer required")
	case params.Repositories == nil:
		return nil, fmt.Errorf("repositories service required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:         params.Repo,
		tx:           params.Tx,
		scheduler:    params.Scheduler,
		aggregates:   params.Aggregates,
		repositories: params.Repositories,
		logg:         params.Logger,
		now:          now,
	}, nil
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, input CreateInput) (*models.Cron, error) {
	name, err := validateName(input.Name)
	if err != nil {
		return nil, err
	}
	schedule, err := s.validateSchedule(input.Schedule)
	if err != nil {
		return nil, err
	}

	cron := &models.Cron{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     name,
		Schedule: schedule,
		Status:   enums.CronStatusDisabled,
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		scope, err := s.validateScope(ctx, tx, userID, input.RepositoryIDs)
		if err != nil {
			return err
		}
		cron.RepositoryIDs = scope
		if input.Enabled {
			if err := s.bind(ctx, tx, cron); err != nil {
				return err
			}
		}
		if err := s.repo.Create(ctx, tx, cron); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create cron")
		}
		if err := s.aggregates.Insert(ctx, tx, aggregates.CronEntry(cron)); err != nil {
			return err
		}
		return s.verifyBinding(ctx, tx, cron)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, cron, "cron created")
	return cron, nil
}

// Update applies field changes and reconciles the scheduler binding in one
// transaction. Rescheduling cancels the old job before creating the new one.
func (s *Service) Update(ctx context.Context, userID, id uuid.UUID, input UpdateInput) (*models.Cron, error) {
	var (
		name     *string
		schedule *string
	)
	if input.Name != nil {
		n, err := validateName(*input.Name)
		if err != nil {
			return nil, err
		}
		name = &n
	}
	if input.Schedule != nil {
		sc, err := s.validateSchedule(*input.Schedule)
		if err != nil {
			return nil, err
		}
		schedule = &sc
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be enabled or disabled")
	}

	var cron *models.Cron
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.loadOwned(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		before := *current
		cron = current

		rebind := false
		if name != nil {
			cron.Name = *name
		}
		if schedule != nil && *schedule != cron.Schedule {
			cron.Schedule = *schedule
			rebind = true
		}
		if input.RepositoryIDs != nil {
			scope, err := s.validateScope(ctx, tx, userID, *input.RepositoryIDs)
			if err != nil {
				return err
			}
			if !sameScope(scope, cron.RepositoryIDs) {
				cron.RepositoryIDs = scope
				rebind = true
			}
		}
		target := cron.Status
		if input.Status != nil {
			target = *input.Status
		}

		if err := s.transition(ctx, tx, cron, target, rebind); err != nil {
			return err
		}
		if err := s.repo.Save(ctx, tx, cron); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save cron")
		}
		if err := s.aggregates.Replace(ctx, tx, aggregates.CronEntry(&before), aggregates.CronEntry(cron)); err != nil {
			return err
		}
		return s.verifyBinding(ctx, tx, cron)
	})
	if err != nil {
		return nil, err
	}
	s.afterCommit(ctx, cron, "cron updated")
	return cron, nil
}

// SetStatus enables or disables a cron.
func (s *Service) SetStatus(ctx context.Context, userID, id uuid.UUID, status enums.CronStatus) (*models.Cron, error) {
	return s.Update(ctx, userID, id, UpdateInput{Status: &status})
}

// transition moves cron to target, touching the scheduler only when the binding
// has to change.
func (s *Service) transition(ctx context.Context, tx *gorm.DB, cron *models.Cron, target enums.CronStatus, rebind bool) error {
	enabled := cron.Status == enums.CronStatusEnabled
	switch {
	case enabled && target == enums.CronStatusDisabled:
		return s.unbind(ctx, tx, cron)
	case !enabled && target == enums.CronStatusEnabled:
		return s.bind(ctx, tx, cron)
	case enabled && rebind:
		if err := s.unbind(ctx, tx, cron); err != nil {
			return err
		}
		return s.bind(ctx, tx, cron)
	default:
		return nil
	}
}

func (s *Service) bind(ctx context.Context, tx *gorm.DB, cron *models.Cron) error {
	handle, err := s.scheduler.ScheduleRecurring(ctx, tx, cron.Schedule, JobRunCron, scheduler.CronReference(cron.ID), RunPayload{CronID: cron.ID})
	if err != nil {
		return err
	}
	cron.JobID = &handle
	cron.Status = enums.CronStatusEnabled
	return nil
}

func (s *Service) unbind(ctx context.Context, tx *gorm.DB, cron *models.Cron) error {
	if cron.JobID != nil {
		if _, err := s.scheduler.Cancel(ctx, tx, *cron.JobID); err != nil {
			return err
		}
	}
	cron.JobID = nil
	cron.Status = enums.CronStatusDisabled
	return nil
}

// verifyBinding aborts the transaction unless an enabled cron has exactly one live
// job, namely cron.JobID, and a disabled cron has none.
func (s *Service) verifyBinding(ctx context.Context, tx *gorm.DB, cron *models.Cron) error {
	live, err := s.scheduler.CountLive(ctx, tx, scheduler.CronReference(cron.ID))
	if err != nil {
		return err
	}
	want := int64(0)
	if cron.Status == enums.CronStatusEnabled {
		want = 1
		if cron.JobID == nil {
			return pkgerrors.New(pkgerrors.CodeInternal, "enabled cron has no job")
		}
		ok, err := s.scheduler.IsLive(ctx, tx, *cron.JobID)
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeInternal, "enabled cron points at a dead job")
		}
	} else if cron.JobID != nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "disabled cron still holds a job")
	}
	if live != want {
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("cron %s has %d live jobs, want %d", cron.ID, live, want))
	}
	return nil
}

// Delete removes the job, the aggregate entry, the history and the record, in
// that order.
func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		cron, err := s.loadOwned(ctx, tx, userID, id, true)
		if err != nil {
			return err
		}
		if err := s.unbind(ctx, tx, cron); err != nil {
			return err
		}
		if err := s.aggregates.Delete(ctx, tx, enums.AggregateCrons, cron.ID); err != nil {
			return err
		}
		if err := s.repo.DeleteHistory(ctx, tx, cron.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cron history")
		}
		if err := s.repo.Delete(ctx, tx, cron.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete cron")
		}
		live, err := s.scheduler.CountLive(ctx, tx, scheduler.CronReference(cron.ID))
		if err != nil {
			return err
		}
		if live != 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "deleted cron still has live jobs")
		}
		return nil
	})
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Cron, error) {
	return s.loadOwned(ctx, nil, userID, id, false)
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Cron, error) {
	rows, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list crons")
	}
	return rows, nil
}

// History returns the newest runs first.
func (s *Service) History(ctx context.Context, userID, id uuid.UUID, limit int) ([]models.CronHistory, error) {
	if _, err := s.loadOwned(ctx, nil, userID, id, false); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := s.repo.ListHistory(ctx, id, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list cron history")
	}
	return rows, nil
}

func (s *Service) loadOwned(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID, lock bool) (*models.Cron, error) {
	var (
		cron *models.Cron
		err  error
	)
	if lock {
		cron, err = s.repo.LockByID(ctx, tx, id)
	} else {
		cron, err = s.repo.FindByID(ctx, tx, id)
	}
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cron not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load cron")
	}
	if cron.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "cron not found")
	}
	return cron, nil
}

func (s *Service) validateSchedule(expression string) (string, error) {
	expression = strings.Join(strings.Fields(expression), " ")
	if err := ValidateExpression(expression); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule")
	}
	if _, err := scheduler.NextRun(expression, s.now()); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid schedule")
	}
	return expression, nil
}

// validateScope normalizes ids and rejects repositories the user does not own.
// An empty scope covers every repository of the user.
func (s *Service) validateScope(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) (dbtypes.UUIDArray, error) {
	scope := dbtypes.UUIDArray(ids).Normalize()
	if len(scope) == 0 {
		return dbtypes.UUIDArray{}, nil
	}
	owned, err := s.repositories.Owned(ctx, tx, userID, scope)
	if err != nil {
		return nil, err
	}
	if len(owned) != len(scope) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "scope contains unknown repositories")
	}
	return scope, nil
}

func (s *Service) afterCommit(ctx context.Context, cron *models.Cron, msg string) {
	if cron.Status == enums.CronStatusEnabled {
		s.scheduler.Wake(ctx)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"cron_id": cron.ID.String(),
		"status":  cron.Status.String(),
	}), msg)
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "name required")
	}
	if len([]rune(name)) > maxNameLength {
		return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("name must be at most %d characters", maxNameLength))
	}
	return name, nil
}

func sameScope(a, b dbtypes.UUIDArray) bool {
	a, b = a.Normalize(), b.Normalize()
	if len(a) != len(b) {
		return false
	}
	for _, id := range a {
		if !b.Contains(id) {
			return false
		}
	}
	return true
}
