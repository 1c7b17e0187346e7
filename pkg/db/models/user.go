package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the local account keyed by the Clerk identity id.
type User struct {
	ID                   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ClerkUserID          string    `gorm:"column:clerk_user_id;not null;uniqueIndex"`
	Email                string    `gorm:"column:email;not null"`
	Username             *string   `gorm:"column:username"`
	GitHubInstallationID *int64    `gorm:"column:github_installation_id;uniqueIndex"`
	GitHubLogin          *string   `gorm:"column:github_login"`
	CreatedAt            time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}
