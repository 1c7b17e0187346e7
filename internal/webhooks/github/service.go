package githubwebhook

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/internal/pullrequests"
	"github.com/angelmondragon/commitscribe-backend/internal/summaries"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	gh "github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/metrics"
	"github.com/angelmondragon/commitscribe-backend/pkg/scheduler"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type eventStore interface {
	Record(ctx context.Context, tx *gorm.DB, input events.RecordInput) (uuid.UUID, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status enums.EventStatus, cause error) error
}

type userResolver interface {
	ByInstallation(ctx context.Context, tx *gorm.DB, installationID int64) (*models.User, error)
	UnlinkInstallation(ctx context.Context, tx *gorm.DB, userID uuid.UUID) error
}

type repositoryStore interface {
	ByGitHubID(ctx context.Context, tx *gorm.DB, installationID, githubRepoID int64) (*models.Repository, error)
	Add(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, repos []gh.Repository) (int, error)
	Remove(ctx context.Context, tx *gorm.DB, installationID int64, githubRepoIDs []int64) (int, error)
	RemoveInstallation(ctx context.Context, tx *gorm.DB, installationID int64) (int, error)
}

type commitDiscoverer interface {
	Discover(ctx context.Context, tx *gorm.DB, input commits.DiscoverInput) (*models.Commit, bool, error)
}

type pullRequestDiscoverer interface {
	Discover(ctx context.Context, tx *gorm.DB, input pullrequests.DiscoverInput) (*models.PullRequest, bool, error)
}

type jobScheduler interface {
	Schedule(ctx context.Context, tx *gorm.DB, delay time.Duration, jobName string, payload any) (scheduler.JobHandle, error)
	Wake(ctx context.Context)
}

type tokenCache interface {
	ForgetInstallation(installationID int64)
}

// Delivery is one verified request from GitHub.
type Delivery struct {
	Event string
	ID    string
	Body  []byte
}

type ServiceParams struct {
	Tx           txRunner
	Events       eventStore
	Users        userResolver
	Repositories repositoryStore
	Commits      commitDiscoverer
	PullRequests pullRequestDiscoverer
	Scheduler    jobScheduler
	Tokens       tokenCache
	Metrics      *metrics.PipelineMetrics
	Logger       *logger.Logger
	PushDelay    time.Duration
}

// Service turns verified GitHub deliveries into recorded events and scheduled
// summarization jobs. Installation changes are applied synchronously.
type Service struct {
	tx           txRunner
	events       eventStore
	users        userResolver
	repositories repositoryStore
	commits      commitDiscoverer
	pullRequests pullRequestDiscoverer
	scheduler    jobScheduler
	tokens       tokenCache
	metrics      *metrics.PipelineMetrics
	logg         *logger.Logger
	pushDelay    time.Duration
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
	case params.Commits == nil:
		return nil, fmt.Errorf("commits service required")
	case params.PullRequests == nil:
		return nil, fmt.Errorf("pull requests service required")
	case params.Scheduler == nil:
		return nil, fmt.Errorf("scheduler required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.PushDelay < 0:
		return nil, fmt.Errorf("push delay must be non-negative")
	}
	return &Service{
		tx:           params.Tx,
		events:       params.Events,
		users:        params.Users,
		repositories: params.Repositories,
		commits:      params.Commits,
		pullRequests: params.PullRequests,
		scheduler:    params.Scheduler,
		tokens:       params.Tokens,
		metrics:      params.Metrics,
		logg:         params.Logger,
		pushDelay:    params.PushDelay,
	}, nil
}

// HandleDelivery processes a verified delivery. Unknown event types succeed
// without side effects.
func (s *Service) HandleDelivery(ctx context.Context, d Delivery) (err error) {
	ctx = s.logg.WithDelivery(ctx, enums.PlatformGitHub.String(), d.ID)
	ctx = s.logg.WithField(ctx, "github_event", d.Event)

	ev, err := Parse(d.Event, d.Body)
	if err != nil {
		s.metrics.IncDelivery(enums.PlatformGitHub.String(), d.Event, "rejected")
		return err
	}

	outcome := "accepted"
	defer func() {
		if err != nil {
			outcome = "failed"
			if pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				outcome = "rejected"
			}
		}
		s.metrics.IncDelivery(enums.PlatformGitHub.String(), d.Event, outcome)
	}()

	switch ev := ev.(type) {
	case *PushEvent:
		return s.handlePush(ctx, d, ev)
	case *PullRequestEvent:
		if !ev.Summarizable() {
			outcome = "ignored"
			s.logg.Debug(s.logg.WithField(ctx, "action", ev.Action), "pull request action ignored")
			return nil
		}
		return s.handlePullRequest(ctx, d, ev)
	case *InstallationEvent:
		return s.handleInstallation(ctx, d, ev)
	case *InstallationRepositoriesEvent:
		return s.handleInstallationRepositories(ctx, d, ev)
	default:
		outcome = "ignored"
		s.logg.Debug(ctx, "github event ignored")
		return nil
	}
}

func (s *Service) handlePush(ctx context.Context, d Delivery, ev *PushEvent) error {
	user, err := s.resolveUser(ctx, ev.InstallationID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	var eventID uuid.UUID
	var pending []uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo, err := s.ensureRepository(ctx, tx, user.ID, ev.InstallationID, ev.Repository)
		if err != nil {
			return err
		}
		eventID, err = s.record(ctx, tx, d)
		if err != nil {
			return err
		}
		for _, ref := range ev.Commits {
			commit, _, err := s.commits.Discover(ctx, tx, commits.DiscoverInput{
				UserID:         user.ID,
				RepositoryID:   repo.ID,
				WebhookEventID: &eventID,
				SHA:            ref.SHA,
				Message:        ref.Message,
				AuthorName:     ref.AuthorName,
				AuthorEmail:    ref.AuthorEmail,
				URL:            ref.URL,
				CommittedAt:    ref.CommittedAt,
			})
			if err != nil {
				return err
			}
			if !commit.HasSummary() {
				pending = append(pending, commit.ID)
			}
		}
		if len(pending) == 0 {
			return nil
		}
		_, err = s.scheduler.Schedule(ctx, tx, s.pushDelay, summaries.JobSummarizePush, summaries.PushPayload{
			EventID:   eventID,
			CommitIDs: pending,
		})
		return err
	})
	if err != nil {
		return err
	}

	if len(pending) == 0 {
		return s.settle(ctx, eventID)
	}
	s.scheduler.Wake(ctx)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":   eventID.String(),
		"repository": ev.Repository.FullName,
		"commits":    len(pending),
	}), "push accepted")
	return nil
}

func (s *Service) handlePullRequest(ctx context.Context, d Delivery, ev *PullRequestEvent) error {
	user, err := s.resolveUser(ctx, ev.InstallationID)
	if err != nil {
		return err
	}
	ctx = s.logg.WithUserID(ctx, user.ID.String())

	var eventID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo, err := s.ensureRepository(ctx, tx, user.ID, ev.InstallationID, ev.Repository)
		if err != nil {
			return err
		}
		eventID, err = s.record(ctx, tx, d)
		if err != nil {
			return err
		}
		pr, _, err := s.pullRequests.Discover(ctx, tx, pullrequests.DiscoverInput{
			UserID:         user.ID,
			RepositoryID:   repo.ID,
			WebhookEventID: &eventID,
			Number:         ev.Number,
			Title:          ev.Title,
			Body:           ev.Body,
			URL:            ev.URL,
			State:          ev.State,
			HeadSHA:        ev.HeadSHA,
		})
		if err != nil {
			return err
		}
		_, err = s.scheduler.Schedule(ctx, tx, 0, summaries.JobSummarizePullRequest, summaries.PullRequestPayload{
			EventID:       eventID,
			PullRequestID: pr.ID,
		})
		return err
	})
	if err != nil {
		return err
	}

	s.scheduler.Wake(ctx)
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"event_id":   eventID.String(),
		"repository": ev.Repository.FullName,
		"number":     ev.Number,
		"action":     ev.Action,
	}), "pull request accepted")
	return nil
}

// handleInstallation applies installation lifecycle changes. A created
// installation with no linked user is acknowledged: the install callback links
// it once the user returns from GitHub.
func (s *Service) handleInstallation(ctx context.Context, d Delivery, ev *InstallationEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"installation_id": ev.InstallationID, "action": ev.Action})
	user, err := s.resolveUser(ctx, ev.InstallationID)
	if err != nil {
		if ev.Action == "created" && pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
			s.logg.Info(ctx, "installation created before callback")
			return nil
		}
		return err
	}

	var eventID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		eventID, err = s.record(ctx, tx, d)
		if err != nil {
			return err
		}
		if ev.Action == "deleted" {
			if _, err := s.repositories.RemoveInstallation(ctx, tx, ev.InstallationID); err != nil {
				return err
			}
			return s.users.UnlinkInstallation(ctx, tx, user.ID)
		}
		if len(ev.Repositories) == 0 {
			return nil
		}
		_, err = s.repositories.Add(ctx, tx, user.ID, ev.InstallationID, ev.Repositories)
		return err
	})
	if err != nil {
		return err
	}

	if ev.Action == "deleted" && s.tokens != nil {
		s.tokens.ForgetInstallation(ev.InstallationID)
	}
	s.logg.Info(s.logg.WithUserID(ctx, user.ID.String()), "installation updated")
	return s.settle(ctx, eventID)
}

func (s *Service) handleInstallationRepositories(ctx context.Context, d Delivery, ev *InstallationRepositoriesEvent) error {
	ctx = s.logg.WithFields(ctx, map[string]any{"installation_id": ev.InstallationID, "action": ev.Action})
	user, err := s.resolveUser(ctx, ev.InstallationID)
	if err != nil {
		return err
	}

	var eventID uuid.UUID
	var added, removed int
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		eventID, err = s.record(ctx, tx, d)
		if err != nil {
			return err
		}
		if len(ev.Added) > 0 {
			if added, err = s.repositories.Add(ctx, tx, user.ID, ev.InstallationID, ev.Added); err != nil {
				return err
			}
		}
		if len(ev.Removed) > 0 {
			ids := make([]int64, 0, len(ev.Removed))
			for _, r := range ev.Removed {
				ids = append(ids, r.ID)
			}
			if removed, err = s.repositories.Remove(ctx, tx, ev.InstallationID, ids); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"added": added, "removed": removed}), "installation repositories updated")
	return s.settle(ctx, eventID)
}

// resolveUser maps an installation to its owner. An unlinked installation is a
// client error so GitHub surfaces it in the delivery log.
func (s *Service) resolveUser(ctx context.Context, installationID int64) (*models.User, error) {
	user, err := s.users.ByInstallation(ctx, nil, installationID)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, fmt.Sprintf("installation %d is not linked to a user", installationID))
		}
		return nil, err
	}
	return user, nil
}

// ensureRepository returns the tracked repository, adding it when the push
// arrives before the installation_repositories delivery.
func (s *Service) ensureRepository(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, remote gh.Repository) (*models.Repository, error) {
	repo, err := s.repositories.ByGitHubID(ctx, tx, installationID, remote.ID)
	if err == nil {
		return repo, nil
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		return nil, err
	}
	if remote.ID <= 0 || remote.Name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "github payload missing repository")
	}
	if _, err := s.repositories.Add(ctx, tx, userID, installationID, []gh.Repository{remote}); err != nil {
		return nil, err
	}
	return s.repositories.ByGitHubID(ctx, tx, installationID, remote.ID)
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, d Delivery) (uuid.UUID, error) {
	return s.events.Record(ctx, tx, events.RecordInput{
		Platform:   enums.PlatformGitHub,
		EventType:  d.Event,
		DeliveryID: d.ID,
		Payload:    d.Body,
	})
}

// settle closes events that have no follow-up job.
func (s *Service) settle(ctx context.Context, eventID uuid.UUID) error {
	return s.events.UpdateStatus(ctx, eventID, enums.EventStatusSuccess, nil)
}
