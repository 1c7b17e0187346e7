package users

import (
	"context"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/repo"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	repo.Base[models.User]
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase[models.User](db)}
}

// CreateIfAbsent inserts the user unless the Clerk id already exists. It
// reports whether a row was created.
func (r *Repository) CreateIfAbsent(ctx context.Context, tx *gorm.DB, user *models.User) (bool, error) {
	result := r.Conn(ctx, tx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "clerk_user_id"}}, DoNothing: true}).
		Create(user)
	return result.RowsAffected > 0, result.Error
}

func (r *Repository) FindByClerkID(ctx context.Context, tx *gorm.DB, clerkID string) (*models.User, error) {
	return r.First(ctx, tx, "clerk_user_id = ?", clerkID)
}

func (r *Repository) FindByInstallationID(ctx context.Context, tx *gorm.DB, installationID int64) (*models.User, error) {
	return r.First(ctx, tx, "github_installation_id = ?", installationID)
}

// SetInstallation overwrites the user's GitHub linkage. A nil installation id
// unlinks the account.
func (r *Repository) SetInstallation(ctx context.Context, tx *gorm.DB, id uuid.UUID, installationID *int64, login *string, now time.Time) error {
	return r.Conn(ctx, tx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{
			"github_installation_id": installationID,
			"github_login":           login,
			"updated_at":             now,
		}).Error
}

// List pages users by id for admin tooling.
func (r *Repository) List(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	var rows []models.User
	q := r.DB(ctx).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		q = q.Where("id > ?", after)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
