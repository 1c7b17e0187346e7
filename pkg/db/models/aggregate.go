package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
)

// AggregateEntry mirrors exactly one live base-table row inside a per-user aggregate.
type AggregateEntry struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Aggregate enums.Aggregate `gorm:"column:aggregate;not null"`
	Namespace uuid.UUID       `gorm:"column:namespace;type:uuid;not null"`
	RecordID  uuid.UUID       `gorm:"column:record_id;type:uuid;not null"`
	OrderKey  time.Time       `gorm:"column:order_key;not null"`
	SumValue  int64           `gorm:"column:sum_value;not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (e *AggregateEntry) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

// AggregateTotal caches count and sum for one (aggregate, namespace) pair.
type AggregateTotal struct {
	Aggregate  enums.Aggregate `gorm:"column:aggregate;primaryKey"`
	Namespace  uuid.UUID       `gorm:"column:namespace;type:uuid;primaryKey"`
	EntryCount int64           `gorm:"column:entry_count;not null;default:0"`
	SumTotal   int64           `gorm:"column:sum_total;not null;default:0"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
