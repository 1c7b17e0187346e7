package scheduler

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository is the scheduled_jobs table.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, job *models.ScheduledJob) error {
	return r.conn(ctx, tx).Create(job).Error
}

func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ScheduledJob, error) {
	var job models.ScheduledJob
	if err := r.conn(ctx, tx).First(&job, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// Cancel moves a live job to canceled. It reports whether a live row was changed.
func (r *Repository) Cancel(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) (bool, error) {
	result := r.conn(ctx, tx).
		Model(&models.ScheduledJob{}).
		Where("id = ? AND status IN ?", id, liveStatuses()).
		UpdateColumns(map[string]any{
			"status":           enums.JobStatusCanceled,
			"lease_owner":      nil,
			"lease_expires_at": nil,
			"updated_at":       now,
		})
	return result.RowsAffected > 0, result.Error
}

func (r *Repository) CountLiveByReference(ctx context.Context, tx *gorm.DB, reference string) (int64, error) {
	var count int64
	err := r.conn(ctx, tx).
		Model(&models.ScheduledJob{}).
		Where("reference = ? AND status IN ?", reference, liveStatuses()).
		Count(&count).Error
	return count, err
}

// ClaimDue leases up to limit due jobs to owner and commits before returning, so
// no row lock is held while handlers run. Running jobs whose lease expired are
// reclaimed.
func (r *Repository) ClaimDue(ctx context.Context, owner string, lease time.Duration, limit int, now time.Time) ([]models.ScheduledJob, error) {
	var claimed []models.ScheduledJob
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var due []models.ScheduledJob
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("(status = ? AND run_at <= ?) OR (status = ? AND lease_expires_at < ?)",
				enums.JobStatusPending, now, enums.JobStatusRunning, now).
			Order("run_at ASC").
			Limit(limit).
			Find(&due).Error
		if err != nil || len(due) == 0 {
			return err
		}

		ids := make([]uuid.UUID, 0, len(due))
		for _, job := range due {
			ids = append(ids, job.ID)
		}
		expires := now.Add(lease)
		err = tx.Model(&models.ScheduledJob{}).
			Where("id IN ?", ids).
			UpdateColumns(map[string]any{
				"status":           enums.JobStatusRunning,
				"lease_owner":      owner,
				"lease_expires_at": expires,
				"attempt_count":    gorm.Expr("attempt_count + 1"),
				"updated_at":       now,
			}).Error
		if err != nil {
			return err
		}

		for i := range due {
			due[i].Status = enums.JobStatusRunning
			due[i].AttemptCount++
			due[i].LeaseOwner = &owner
			due[i].LeaseExpiresAt = &expires
		}
		claimed = due
		return nil
	})
	return claimed, err
}

// completion describes how a leased job ends. A non-nil NextRunAt returns a
// recurring job to pending.
type completion struct {
	Status    enums.JobStatus
	LastError *string
	NextRunAt *time.Time
	Now       time.Time
}

// Complete finalizes a job only while owner still holds its lease, so a job
// canceled mid-run stays canceled.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, owner string, c completion) (bool, error) {
	updates := map[string]any{
		"status":           c.Status,
		"last_error":       c.LastError,
		"last_run_at":      c.Now,
		"lease_owner":      nil,
		"lease_expires_at": nil,
		"updated_at":       c.Now,
	}
	if c.NextRunAt != nil {
		updates["status"] = enums.JobStatusPending
		updates["run_at"] = *c.NextRunAt
	}
	result := r.db.WithContext(ctx).
		Model(&models.ScheduledJob{}).
		Where("id = ? AND status = ? AND lease_owner = ?", id, enums.JobStatusRunning, owner).
		UpdateColumns(updates)
	return result.RowsAffected > 0, result.Error
}

// PurgeFinished deletes terminal jobs last touched before cutoff. Jobs still
// referenced by a cron are never terminal, so this cannot orphan a cron.
func (r *Repository) PurgeFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND updated_at < ?", []enums.JobStatus{enums.JobStatusSucceeded, enums.JobStatusFailed, enums.JobStatusCanceled}, cutoff).
		Where("id NOT IN (?)", r.db.Model(&models.Cron{}).Select("job_id").Where("job_id IS NOT NULL")).
		Delete(&models.ScheduledJob{})
	return result.RowsAffected, result.Error
}

func liveStatuses() []enums.JobStatus {
	return []enums.JobStatus{enums.JobStatusPending, enums.JobStatusRunning}
}
