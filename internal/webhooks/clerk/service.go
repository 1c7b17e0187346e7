package clerkwebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventUserCreated = "user.created"
	EventUserDeleted = "user.deleted"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	Record(ctx context.Context, tx *gorm.DB, input events.RecordInput) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, cause error) error
}

type userStore interface {
	EnsureFromClerk(ctx context.Context, input users.ClerkUser) (*models.User, bool, error)
	ByClerkID(ctx context.Context, clerkID string) (*models.User, error)
	UnlinkInstallation(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type installationRemover interface {
	RemoveInstallation(ctx context.Context, tx *gorm.DB, installationID int64) (int, error)
}

// Delivery is one Svix-verified request from Clerk.
type Delivery struct {
	ID   string
	Body []byte
}

type ServiceParams struct {
	Tx           txRunner
	Events       eventStore
	Users        userStore
	Repositories installationRemover
	Metrics      *metrics.PipelineMetrics
	Logger       *logger.Logger
}

// Service provisions and unlinks local users from Clerk identity events.
type Service struct {
	tx           txRunner
	events       eventStore
	users        userStore
	repositories installationRemover
	metrics      *metrics.PipelineMetrics
	logg         *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Events == nil:
		return nil, fmt.Errorf("event store required")
	case params.Users == nil:
		return nil, fmt.Errorf("users service required")
	case params.Repositories == nil:
		return nil, fmt.Errorf("repositories service required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		tx:           params.Tx,
		events:       params.Events,
		users:        params.Users,
		repositories: params.Repositories,
		metrics:      params.Metrics,
		logg:         params.Logger,
	}, nil
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type userData struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	PrimaryEmailID string `json:"primary_email_address_id"`
	EmailAddresses []struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	} `json:"email_addresses"`
}

// primaryEmail returns the primary address, or the first one listed.
func (u userData) primaryEmail() string {
	for _, e := range u.EmailAddresses {
		if e.ID == u.PrimaryEmailID {
			return e.EmailAddress
		}
	}
	if len(u.EmailAddresses) > 0 {
		return u.EmailAddresses[0].EmailAddress
	}
	return ""
}

// HandleDelivery applies user.created and user.deleted. Every other type is
// acknowledged without side effects.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) error {
	ctx = s.logg.WithDelivery(ctx, enums.PlatformClerk.String(), d.ID)

	var env envelope
	if err := json.Unmarshal(d.Body, &env); err != nil {
		s.metrics.IncDelivery(enums.PlatformClerk.String(), "unknown", "rejected")
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode clerk payload")
	}
	ctx = s.logg.WithField(ctx, "clerk_event", env.Type)

	var handler func(context.Context, userData) error
	switch env.Type {
	case EventUserCreated:
		handler = s.userCreated
	case EventUserDeleted:
		handler = s.userDeleted
	default:
		s.metrics.IncDelivery(enums.PlatformClerk.String(), env.Type, "ignored")
		s.logg.Debug(ctx, "clerk event ignored")
		return nil
	}

	var data userData
	if err := json.Unmarshal(env.Data, &data); err != nil || strings.TrimSpace(data.ID) == "" {
		s.metrics.IncDelivery(enums.PlatformClerk.String(), env.Type, "rejected")
		return pkgerrors.New(pkgerrors.CodeValidation, "clerk payload missing user id")
	}

	eventID, err := s.events.Record(ctx, nil, events.RecordInput{
		Platform:   enums.PlatformClerk,
		EventType:  env.Type,
		DeliveryID: d.ID,
		Payload:    d.Body,
	})
	if err != nil {
		s.metrics.IncDelivery(enums.PlatformClerk.String(), env.Type, "failed")
		return err
	}

	runErr := handler(ctx, data)
	status, outcome := enums.EventStatusSuccess, "accepted"
	if runErr != nil {
		status, outcome = enums.EventStatusFailed, "failed"
	}
	s.metrics.IncDelivery(enums.PlatformClerk.String(), env.Type, outcome)
	if err := s.events.UpdateStatus(ctx, eventID, status, runErr); err != nil && runErr == nil {
		return err
	}
	return runErr
}

func (s *Service) userCreated(ctx context.Context, data userData) error {
	input := users.ClerkUser{ClerkID: data.ID, Email: data.primaryEmail()}
	if name := strings.TrimSpace(data.Username); name != "" {
		input.Username = &name
	}
	user, created, err := s.users.EnsureFromClerk(ctx, input)
	if err != nil {
		return err
	}
	s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, user.ID.String()), map[string]any{"created": created}), "clerk user provisioned")
	return nil
}

// userDeleted drops the user's installation link and repositories. The user
// row stays so recorded summaries keep their owner.
func (s *Service) userDeleted(ctx context.Context, data userData) error {
	user, err := s.users.ByClerkID(ctx, data.ID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Info(ctx, "deleted clerk user was never provisioned")
			return nil
		}
		return err
	}
	if user.GitHubInstallationID == nil {
		return nil
	}
	installationID := *user.GitHubInstallationID
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repositories.RemoveInstallation(ctx, tx, installationID)
		if err != nil {
			return err
		}
		if err := s.users.UnlinkInstallation(ctx, tx, user.ID); err != nil {
			return err
		}
		s.logg.Info(s.logg.WithFields(s.logg.WithUserID(ctx, user.ID.String()), map[string]any{
			"installation_id": installationID,
			"removed":         removed,
		}), "clerk user unlinked")
		return nil
	})
}
