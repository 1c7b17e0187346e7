package pullrequests

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	repo.Base[models.PullRequest]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.PullRequest](db)}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, pr *models.PullRequest) error {
	return r.Conn(ctx, tx).Create(pr).Error
}

func (r *Repository) FindByNumber(ctx context.Context, tx *gorm.DB, repositoryID uuid.UUID, number int) (*models.PullRequest, error) {
	return r.First(ctx, tx, "repository_id = ? AND number = ?", repositoryID, number)
}

// Refresh rewrites the mutable GitHub-side fields. Summary columns are untouched.
func (r *Repository) Refresh(ctx context.Context, tx *gorm.DB, pr *models.PullRequest) error {
	return r.Conn(ctx, tx).
		Model(&models.PullRequest{}).
		Where("id = ?", pr.ID).
		Updates(map[string]any{
			"title":            pr.Title,
			"body":             pr.Body,
			"url":              pr.URL,
			"state":            pr.State,
			"head_sha":         pr.HeadSHA,
			"webhook_event_id": pr.WebhookEventID,
		}).Error
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.PullRequest, error) {
	query := r.DB(ctx).Model(&models.PullRequest{}).Where("user_id = ?", userID)
	var rows []models.PullRequest
	err := pagination.Seek(query, cursor, limit).Find(&rows).Error
	return rows, err
}

func (r *Repository) SetSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int, now time.Time) (bool, error) {
	result := r.Conn(ctx, tx).
		Model(&models.PullRequest{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"previous_summary":     gorm.Expr("summary"),
			"summary":              summary,
			"additions":            additions,
			"deletions":            deletions,
			"summary_generated_at": now,
			"updated_at":           now,
		})
	return result.RowsAffected > 0, result.Error
}
