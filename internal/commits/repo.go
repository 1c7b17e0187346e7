package commits

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	repo.Base[models.Commit]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.Commit](db)}
}

// CreateIfAbsent inserts the commit unless (repository_id, sha) exists and
// reports whether it was created.
func (r *Repository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, commit *models.Commit) (bool, error) {
	result := r.Conn(ctx, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "repository_id"}, {Name: "sha"}}, DoNothing: true}).
		Create(commit)
	return result.RowsAffected > 0, result.Error
}

func (r *Repository) FindBySHA(ctx context.Context, tx *gorm.DB, repositoryID uuid.UUID, sha string) (*models.Commit, error) {
	return r.First(ctx, tx, "repository_id = ? AND sha = ?", repositoryID, sha)
}

type listParams struct {
	UserID       uuid.UUID
	RepositoryID *uuid.UUID
	Limit        int
	Cursor       *pagination.Cursor
}

func (r *Repository) List(ctx context.Context, params listParams) ([]models.Commit, error) {
	query := r.DB(ctx).Model(&models.Commit{}).Where("user_id = ?", params.UserID)
	if params.RepositoryID != nil {
		query = query.Where("repository_id = ?", *params.RepositoryID)
	}
	var rows []models.Commit
	err := pagination.Seek(query, params.Cursor, params.Limit).Find(&rows).Error
	return rows, err
}

// ListSummarized returns the user's summarized commits among ids, oldest first.
func (r *Repository) ListSummarized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Commit, error) {
	var rows []models.Commit
	err := r.DB(ctx).
		Where("user_id = ? AND id IN ? AND summary IS NOT NULL AND summary <> ''", userID, ids).
		Order("committed_at ASC").
		Find(&rows).Error
	return rows, err
}

// SetSummary shifts the current summary into previous_summary and stores the new
// one in a single statement.
func (r *Repository) SetSummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int, now time.Time) (bool, error) {
	result := r.Conn(ctx, tx).
		Model(&models.Commit{}).
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
