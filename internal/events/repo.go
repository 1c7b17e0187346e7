package events

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository persists webhook events. There is deliberately no delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, event *models.WebhookEvent) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error)
	SetStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, lastError *string, now time.Time) (bool, error)
	IncrementAttempts(ctx context.Context, id uuid.UUID, now time.Time) error
	List(ctx context.Context, params listEventsParams) ([]models.WebhookEvent, error)
	FailStalePending(ctx context.Context, cutoff time.Time, reason string, now time.Time) (int64, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

type listEventsParams struct {
	Platform enums.Platform
	Status   enums.EventStatus
	Limit    int
	Cursor   *pagination.Cursor
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, event *models.WebhookEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	var event models.WebhookEvent
	if err := r.db.WithContext(ctx).First(&event, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// SetStatus overwrites the status unconditionally and always bumps updated_at.
func (r *repositoryImpl) SetStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, lastError *string, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"status":     status,
			"last_error": lastError,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repositoryImpl) IncrementAttempts(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"updated_at": now,
		}).Error
}

func (r *repositoryImpl) List(ctx context.Context, params listEventsParams) ([]models.WebhookEvent, error) {
	query := r.db.WithContext(ctx).Model(&models.WebhookEvent{})
	if params.Platform != "" {
		query = query.Where("platform = ?", params.Platform)
	}
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}

	var rows []models.WebhookEvent
	err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

func (r *repositoryImpl) FailStalePending(ctx context.Context, cutoff time.Time, reason string, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("status = ? AND created_at < ?", enums.EventStatusPending, cutoff).
		UpdateColumns(map[string]any{
			"status":     enums.EventStatusFailed,
			"last_error": reason,
			"updated_at": now,
		})
	return result.RowsAffected, result.Error
}
