package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PullRequest struct {
	ID                 uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	RepositoryID       uuid.UUID  `gorm:"column:repository_id;type:uuid;not null"`
	WebhookEventID     *uuid.UUID `gorm:"column:webhook_event_id;type:uuid"`
	Number             int        `gorm:"column:number;not null"`
	Title              string     `gorm:"column:title;not null"`
	Body               string     `gorm:"column:body"`
	URL                string     `gorm:"column:url"`
	State              string     `gorm:"column:state;not null"`
	HeadSHA            string     `gorm:"column:head_sha"`
	Additions          int        `gorm:"column:additions;not null;default:0"`
	Deletions          int        `gorm:"column:deletions;not null;default:0"`
	Summary            *string    `gorm:"column:summary"`
	PreviousSummary    *string    `gorm:"column:previous_summary"`
	SummaryGeneratedAt *time.Time `gorm:"column:summary_generated_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *PullRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (p *PullRequest) HasSummary() bool {
	return p != nil && p.Summary != nil && *p.Summary != ""
}
