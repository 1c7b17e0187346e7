package crons

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
)

type CronDTO struct {
	ID            uuid.UUID        `json:"id"`
	Name          string           `json:"name"`
	Schedule      string           `json:"schedule"`
	Status        enums.CronStatus `json:"status"`
	RepositoryIDs []uuid.UUID      `json:"repository_ids"`
	LastRunAt     *time.Time       `json:"last_run_at,omitempty"`
	SyncedUntil   *time.Time       `json:"synced_until,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func FromModel(c models.Cron) CronDTO {
	ids := []uuid.UUID(c.RepositoryIDs)
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return CronDTO{
		ID:            c.ID,
		Name:          c.Name,
		Schedule:      c.Schedule,
		Status:        c.Status,
		RepositoryIDs: ids,
		LastRunAt:     c.LastRunAt,
		SyncedUntil:   c.SyncedUntil,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}

type HistoryDTO struct {
	ID               uuid.UUID           `json:"id"`
	RunAt            time.Time           `json:"run_at"`
	Status           enums.CronRunStatus `json:"status"`
	Message          string              `json:"message"`
	DurationMs       int64               `json:"duration_ms"`
	CommitsProcessed int                 `json:"commits_processed"`
}

func HistoryFromModel(h models.CronHistory) HistoryDTO {
	return HistoryDTO{
		ID:               h.ID,
		RunAt:            h.RunAt,
		Status:           h.Status,
		Message:          h.Message,
		DurationMs:       h.DurationMs,
		CommitsProcessed: h.CommitsProcessed,
	}
}
