package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/commitscribe-backend/pkg/db/types"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
)

// Cron is a user-defined recurring summarization run. JobID is set iff Status is enabled.
// SyncedUntil is the discovery cursor: every commit before it has been listed and
// summarized. It only moves forward on a fully successful run.
type Cron struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID        uuid.UUID         `gorm:"column:user_id;type:uuid;not null;index"`
	Name          string            `gorm:"column:name;not null"`
	Schedule      string            `gorm:"column:schedule;not null"`
	Status        enums.CronStatus  `gorm:"column:status;not null"`
	RepositoryIDs dbtypes.UUIDArray `gorm:"column:repository_ids;type:uuid[];not null"`
	JobID         *uuid.UUID        `gorm:"column:job_id;type:uuid"`
	LastRunAt     *time.Time        `gorm:"column:last_run_at"`
	SyncedUntil   *time.Time        `gorm:"column:synced_until"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Cron) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CronHistory is an append-only record of one cron firing.
type CronHistory struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	CronID           uuid.UUID           `gorm:"column:cron_id;type:uuid;not null;index"`
	RunAt            time.Time           `gorm:"column:run_at;not null"`
	Status           enums.CronRunStatus `gorm:"column:status;not null"`
	Message          string              `gorm:"column:message;not null"`
	DurationMs       int64               `gorm:"column:duration_ms;not null"`
	CommitsProcessed int                 `gorm:"column:commits_processed;not null;default:0"`
}

func (CronHistory) TableName() string { return "cron_history" }

func (h *CronHistory) BeforeCreate(*gorm.DB) error {
	ensureID(&h.ID)
	return nil
}
