package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository is a GitHub repository reachable through a user's installation.
type Repository struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID         uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	GitHubRepoID   int64     `gorm:"column:github_repo_id;not null"`
	InstallationID int64     `gorm:"column:installation_id;not null"`
	Owner          string    `gorm:"column:owner;not null"`
	Name           string    `gorm:"column:name;not null"`
	FullName       string    `gorm:"column:full_name;not null"`
	Private        bool      `gorm:"column:private;not null;default:false"`
	DefaultBranch  string    `gorm:"column:default_branch;not null;default:main"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (r *Repository) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
