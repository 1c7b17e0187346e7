package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Commit is a summarizable unit discovered from a push or a cron sweep.
type Commit struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	RepositoryID       uuid.UUID  `gorm:"column:repository_id;type:uuid;not null"`
	WebhookEventID     *uuid.UUID `gorm:"column:webhook_event_id;type:uuid"`
	SHA                string     `gorm:"column:sha;not null"`
	Message            string     `gorm:"column:message;not null"`
	AuthorName         string     `gorm:"column:author_name"`
	AuthorEmail        string     `gorm:"column:author_email"`
	URL                string     `gorm:"column:url"`
	CommittedAt        time.Time  `gorm:"column:committed_at;not null"`
	Additions          int        `gorm:"column:additions;not null;default:0"`
	Deletions          int        `gorm:"column:deletions;not null;default:0"`
	Summary            *string    `gorm:"column:summary"`
	PreviousSummary    *string    `gorm:"column:previous_summary"`
	SummaryGeneratedAt *time.Time `gorm:"column:summary_generated_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Commit) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// HasSummary reports whether a non-empty summary is stored.
func (c *Commit) HasSummary() bool {
	return c != nil && c.Summary != nil && *c.Summary != ""
}
