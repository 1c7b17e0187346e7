package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const maxErrorLength = 2000

// RecordInput describes one verified inbound delivery.
type RecordInput struct {
	Platform   enums.Platform
	EventType  string
	DeliveryID string
	Payload    []byte
}

type ListParams struct {
	Platform enums.Platform
	Status   enums.EventStatus
	Limit    int
	Cursor   string
}

type ListResult struct {
	Items  []models.WebhookEvent `json:"items"`
	Cursor string                `json:"cursor"`
}

type ServiceParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

// Service is the event store: an append-only audit log with mutable status.
type Service struct {
	repo  Repository
	logg  *logger.Logger
	nowFn func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("events repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, logg: params.Logger, nowFn: now}, nil
}

// Record inserts the event as pending. tx may be nil; when set the insert joins it
// so that the event and its follow-up job commit together.
func (s *Service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (uuid.UUID, error) {
	if !input.Platform.IsValid() {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "unknown platform")
	}
	if strings.TrimSpace(input.EventType) == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "event type required")
	}
	payload := input.Payload
	if !json.Valid(payload) {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "payload must be json")
	}

	event := &models.WebhookEvent{
		Platform:   input.Platform,
		EventType:  input.EventType,
		DeliveryID: input.DeliveryID,
		Status:     enums.EventStatusPending,
		RawPayload: json.RawMessage(payload),
	}
	if err := s.repo.WithTx(tx).Create(ctx, event); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record webhook event")
	}
	return event.ID, nil
}

// UpdateStatus moves the event to a terminal status. Repeating a status is a no-op
// apart from updated_at; concurrent writers race and the last one wins. Events never
// go back to pending.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, cause error) error {
	if id == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id required")
	}
	if !status.IsTerminal() {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q is not a terminal event status", status))
	}

	var lastError *string
	if status == enums.EventStatusFailed && cause != nil {
		msg := pkgerrors.Brief(cause, maxErrorLength)
		lastError = &msg
	}

	found, err := s.repo.SetStatus(ctx, id, status, lastError, s.nowFn().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update webhook event status")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"event_id": id.String(), "status": status.String()})
	if status == enums.EventStatusFailed {
		s.logg.Error(logCtx, "webhook event failed", cause)
	} else {
		s.logg.Debug(logCtx, "webhook event status updated")
	}
	return nil
}

// MarkAttempt counts one processing attempt.
func (s *Service) MarkAttempt(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.IncrementAttempts(ctx, id, s.nowFn().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "increment event attempts")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.WebhookEvent, error) {
	event, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "webhook event not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load webhook event")
	}
	return event, nil
}

func (s *Service) List(ctx context.Context, params ListParams) (*ListResult, error) {
	if params.Platform != "" && !params.Platform.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid platform filter")
	}
	if params.Status != "" && !params.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid status filter")
	}

	query := listEventsParams{Platform: params.Platform, Status: params.Status, Limit: params.Limit}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	query.Cursor = cursor

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list webhook events")
	}
	items, next := pagination.Page(rows, params.Limit, func(e models.WebhookEvent) pagination.Cursor {
		return pagination.Cursor{CreatedAt: e.CreatedAt, ID: e.ID}
	})
	return &ListResult{Items: items, Cursor: next}, nil
}

// FailStale marks events that stayed pending past maxAge as failed. Their jobs have
// either crashed past their lease or been lost.
func (s *Service) FailStale(ctx context.Context, maxAge time.Duration) (int64, error) {
	now := s.nowFn().UTC()
	reason := fmt.Sprintf("no worker completed processing within %s", maxAge)
	count, err := s.repo.FailStalePending(ctx, now.Add(-maxAge), reason, now)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail stale webhook events")
	}
	return count, nil
}
