package users

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ServiceParams struct {
	Repo   *Repository
	Logger *logger.Logger
	Now    func() time.Time
}

type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// EnsureFromClerk creates the local user for a Clerk identity. Redelivered
// events find the existing row and succeed.
func (s *Service) EnsureFromClerk(ctx context.Context, input ClerkUser) (*models.User, bool, error) {
	clerkID := strings.TrimSpace(input.ClerkID)
	if clerkID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "clerk user id required")
	}

	user := &models.User{ClerkUserID: clerkID, Email: strings.TrimSpace(input.Email), Username: input.Username}
	created, err := s.repo.CreateIfAbsent(ctx, nil, user)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create user")
	}
	if !created {
		existing, err := s.repo.FindByClerkID(ctx, nil, clerkID)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
		}
		return existing, false, nil
	}

	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "user created from clerk")
	return user, true, nil
}

// ByClerkID resolves the authenticated caller.
func (s *Service) ByClerkID(ctx context.Context, clerkID string) (*models.User, error) {
	user, err := s.repo.FindByClerkID(ctx, nil, clerkID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

func (s *Service) ByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
	}
	return user, nil
}

// ByInstallation resolves the owner of a GitHub App installation.
func (s *Service) ByInstallation(ctx context.Context, tx *gorm.DB, installationID int64) (*models.User, error) {
	user, err := s.repo.FindByInstallationID(ctx, tx, installationID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no user linked to installation")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user by installation")
	}
	return user, nil
}

// LinkInstallation attaches a GitHub App installation to the user. An
// installation already owned by another user is a conflict.
func (s *Service) LinkInstallation(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, login string) error {
	if installationID <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "installation id required")
	}
	owner, err := s.repo.FindByInstallationID(ctx, tx, installationID)
	switch {
	case err == nil && owner.ID != userID:
		return pkgerrors.New(pkgerrors.CodeConflict, "installation linked to another user")
	case err != nil && !db.IsNotFound(err):
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load installation owner")
	}

	var loginPtr *string
	if login = strings.TrimSpace(login); login != "" {
		loginPtr = &login
	}
	if err := s.repo.SetInstallation(ctx, tx, userID, &installationID, loginPtr, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link installation")
	}
	return nil
}

func (s *Service) UnlinkInstallation(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error {
	if err := s.repo.SetInstallation(ctx, tx, userID, nil, nil, s.now().UTC()); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "unlink installation")
	}
	return nil
}

// Page lists users in id order.
func (s *Service) Page(ctx context.Context, after uuid.UUID, limit int) ([]models.User, error) {
	rows, err := s.repo.List(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	return rows, nil
}
