// Package installations links GitHub App installations to local users through
// the install-url / callback round trip.
package installations

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

const defaultStateTTL = 10 * time.Minute

type stateStore interface {
	StoreInstallState(ctx context.Context, state, userID string, ttl time.Duration) error
	ConsumeInstallState(ctx context.Context, state string) (string, error)
}

type installationLinker interface {
	LinkInstallation(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, login string) error
}

type repositorySyncer interface {
	Sync(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, remote []github.Repository) (repositories.SyncResult, error)
}

type repositoryLister interface {
	ListInstallationRepositories(ctx context.Context, installationID int64) ([]github.Repository, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	States       stateStore
	Users        installationLinker
	Repositories repositorySyncer
	GitHub       repositoryLister
	Tx           txRunner
	InstallURL   string
	StateTTL     time.Duration
	Logger       *logger.Logger
}

type Service struct {
	states     stateStore
	users      installationLinker
	repos      repositorySyncer
	github     repositoryLister
	tx         txRunner
	installURL string
	stateTTL   time.Duration
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.States == nil:
		return nil, fmt.Errorf("install state store required")
	case params.Users == nil:
		return nil, fmt.Errorf("users service required")
	case params.Repositories == nil:
		return nil, fmt.Errorf("repositories service required")
	case params.GitHub == nil:
		return nil, fmt.Errorf("github client required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case strings.TrimSpace(params.InstallURL) == "":
		return nil, fmt.Errorf("install url required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.StateTTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &Service{
		states:     params.States,
		users:      params.Users,
		repos:      params.Repositories,
		github:     params.GitHub,
		tx:         params.Tx,
		installURL: params.InstallURL,
		stateTTL:   ttl,
		logg:       params.Logger,
	}, nil
}

// InstallURL mints a single-use state bound to userID and returns the GitHub
// installation page carrying it.
func (s *Service) InstallURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if userID == uuid.Nil {
		return "", pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	state := uuid.NewString()
	if err := s.states.StoreInstallState(ctx, state, userID.String(), s.stateTTL); err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store install state")
	}
	return s.installURL + "?state=" + url.QueryEscape(state), nil
}

// Complete consumes state, links the installation to userID and mirrors the
// repositories it grants.
func (s *Service) Complete(ctx context.Context, userID uuid.UUID, installationID int64, state string) (repositories.SyncResult, error) {
	var result repositories.SyncResult
	state = strings.TrimSpace(state)
	if state == "" || installationID <= 0 {
		return result, pkgerrors.New(pkgerrors.CodeValidation, "installation_id and state are required")
	}

	owner, err := s.states.ConsumeInstallState(ctx, state)
	switch {
	case errors.Is(err, redis.Nil) || (err == nil && owner == ""):
		return result, pkgerrors.New(pkgerrors.CodeValidation, "install state invalid or expired")
	case err != nil:
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume install state")
	case owner != userID.String():
		return result, pkgerrors.New(pkgerrors.CodeForbidden, "install state belongs to another user")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":         userID.String(),
		"installation_id": strconv.FormatInt(installationID, 10),
	})

	remote, err := s.github.ListInstallationRepositories(ctx, installationID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list installation repositories")
	}
	login := ""
	if len(remote) > 0 {
		login = remote[0].Owner
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.users.LinkInstallation(ctx, tx, userID, installationID, login); err != nil {
			return err
		}
		var syncErr error
		result, syncErr = s.repos.Sync(ctx, tx, userID, installationID, remote)
		return syncErr
	})
	if err != nil {
		return repositories.SyncResult{}, err
	}
	s.logg.Info(ctx, "installation linked")
	return result, nil
}
