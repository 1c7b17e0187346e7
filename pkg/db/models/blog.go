package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/commitscribe-backend/pkg/db/types"
)

// Blog is a long-form post generated from a set of commit summaries.
type Blog struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Title     string            `gorm:"column:title;not null"`
	Content   string            `gorm:"column:content;not null"`
	CommitIDs dbtypes.UUIDArray `gorm:"column:commit_ids;type:uuid[];not null"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (b *Blog) BeforeCreate(*gorm.DB) error {
	ensureID(&b.ID)
	return nil
}
