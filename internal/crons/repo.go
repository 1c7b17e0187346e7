package crons

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	repo.Base[models.Cron]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.Cron](db)}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, cron *models.Cron) error {
	return r.Conn(ctx, tx).Create(cron).Error
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, cron *models.Cron) error {
	return r.Conn(ctx, tx).Save(cron).Error
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Cron, error) {
	var rows []models.Cron
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.Conn(ctx, tx).Delete(&models.Cron{}, "id = ?", id).Error
}

// SetLastRun stamps the run time and moves the discovery cursor to syncedUntil.
func (r *Repository) SetLastRun(ctx context.Context, tx *gorm.DB, id uuid.UUID, at, syncedUntil time.Time) error {
	return r.Conn(ctx, tx).
		Model(&models.Cron{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"last_run_at": at, "synced_until": syncedUntil, "updated_at": at}).Error
}

func (r *Repository) AppendHistory(ctx context.Context, tx *gorm.DB, entry *models.CronHistory) error {
	return r.Conn(ctx, tx).Create(entry).Error
}

func (r *Repository) ListHistory(ctx context.Context, cronID uuid.UUID, limit int) ([]models.CronHistory, error) {
	var rows []models.CronHistory
	err := r.DB(ctx).
		Where("cron_id = ?", cronID).
		Order("run_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) DeleteHistory(ctx context.Context, tx *gorm.DB, cronID uuid.UUID) error {
	return r.Conn(ctx, tx).Delete(&models.CronHistory{}, "cron_id = ?", cronID).Error
}
