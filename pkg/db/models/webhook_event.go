package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
)

// WebhookEvent is the audit record of one inbound delivery. Rows are never deleted.
type WebhookEvent struct {
	ID         uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Platform   enums.Platform    `gorm:"column:platform;not null"`
	EventType  string            `gorm:"column:event_type;not null"`
	DeliveryID string            `gorm:"column:delivery_id"`
	Status     enums.EventStatus `gorm:"column:status;not null;default:pending"`
	RawPayload json.RawMessage   `gorm:"column:raw_payload;type:jsonb;not null"`
	Attempts   int               `gorm:"column:attempts;not null;default:0"`
	LastError  *string           `gorm:"column:last_error"`
	CreatedAt  time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (e *WebhookEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
