package events

import (
	"encoding/json"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	"github.com/google/uuid"
)

// EventDTO omits the raw payload; admins fetch it per event.
type EventDTO struct {
	ID         uuid.UUID         `json:"id"`
	Platform   enums.Platform    `json:"platform"`
	EventType  string            `json:"event_type"`
	DeliveryID string            `json:"delivery_id,omitempty"`
	Status     enums.EventStatus `json:"status"`
	Attempts   int               `json:"attempts"`
	LastError  *string           `json:"last_error,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

type EventDetailDTO struct {
	EventDTO
	Payload json.RawMessage `json:"payload"`
}

func FromModel(e models.WebhookEvent) EventDTO {
	return EventDTO{
		ID:         e.ID,
		Platform:   e.Platform,
		EventType:  e.EventType,
		DeliveryID: e.DeliveryID,
		Status:     e.Status,
		Attempts:   e.Attempts,
		LastError:  e.LastError,
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func DetailFromModel(e models.WebhookEvent) EventDetailDTO {
	return EventDetailDTO{EventDTO: FromModel(e), Payload: e.RawPayload}
}
