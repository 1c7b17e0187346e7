package repositories

import (
	"context"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	repo.Base[models.Repository]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.Repository](db)}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, row *models.Repository) error {
	return r.Conn(ctx, tx).Create(row).Error
}

func (r *Repository) Save(ctx context.Context, tx *gorm.DB, row *models.Repository) error {
	return r.Conn(ctx, tx).Save(row).Error
}

func (r *Repository) FindByGitHubID(ctx context.Context, tx *gorm.DB, installationID, githubRepoID int64) (*models.Repository, error) {
	return r.First(ctx, tx, "installation_id = ? AND github_repo_id = ?", installationID, githubRepoID)
}

func (r *Repository) ListByUser(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]models.Repository, error) {
	var rows []models.Repository
	err := r.Conn(ctx, tx).
		Where("user_id = ?", userID).
		Order("full_name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) ListByInstallation(ctx context.Context, tx *gorm.DB, installationID int64) ([]models.Repository, error) {
	var rows []models.Repository
	err := r.Conn(ctx, tx).
		Where("installation_id = ?", installationID).
		Order("full_name ASC").
		Find(&rows).Error
	return rows, err
}

// ListOwned returns the subset of ids that belong to userID.
func (r *Repository) ListOwned(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) ([]models.Repository, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.Repository
	err := r.Conn(ctx, tx).
		Where("user_id = ? AND id IN ?", userID, ids).
		Order("full_name ASC").
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.Conn(ctx, tx).Delete(&models.Repository{}, "id = ?", id).Error
}

func (r *Repository) childIDs(ctx context.Context, tx *gorm.DB, model any, repositoryID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.Conn(ctx, tx).
		Model(model).
		Where("repository_id = ?", repositoryID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *Repository) deleteChildren(ctx context.Context, tx *gorm.DB, model any, repositoryID uuid.UUID) error {
	return r.Conn(ctx, tx).Where("repository_id = ?", repositoryID).Delete(model).Error
}
