package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
)

// ScheduledJob is one row of the durable dispatcher queue. A non-nil
// CronExpression marks a recurring job that is rescheduled after each firing.
// Reference names the domain record that owns the job, e.g. "cron:<id>".
type ScheduledJob struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	JobName        string          `gorm:"column:job_name;not null"`
	Reference      string          `gorm:"column:reference;not null;default:''"`
	Payload        json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	RunAt          time.Time       `gorm:"column:run_at;not null"`
	CronExpression *string         `gorm:"column:cron_expression"`
	Status         enums.JobStatus `gorm:"column:status;not null;default:pending"`
	AttemptCount   int             `gorm:"column:attempt_count;not null;default:0"`
	LeaseOwner     *string         `gorm:"column:lease_owner"`
	LeaseExpiresAt *time.Time      `gorm:"column:lease_expires_at"`
	LastError      *string         `gorm:"column:last_error"`
	LastRunAt      *time.Time      `gorm:"column:last_run_at"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (j *ScheduledJob) BeforeCreate(*gorm.DB) error {
	ensureID(&j.ID)
	return nil
}

// IsRecurring reports whether the job carries a cron expression.
func (j *ScheduledJob) IsRecurring() bool {
	return j != nil && j.CronExpression != nil && *j.CronExpression != ""
}
