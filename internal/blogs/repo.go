package blogs

import (
	"context"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository struct {
	repo.Base[models.Blog]
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.Blog](db)}
}

func (r *Repository) Create(ctx context.Context, tx *gorm.DB, blog *models.Blog) error {
	return r.Conn(ctx, tx).Create(blog).Error
}

func (r *Repository) ListByUser(ctx context.Context, userID uuid.UUID, limit int) ([]models.Blog, error) {
	var rows []models.Blog
	err := r.DB(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	return r.Conn(ctx, tx).Delete(&models.Blog{}, "id = ?", id).Error
}
