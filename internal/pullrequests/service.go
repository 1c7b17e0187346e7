package pullrequests

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type aggregateWriter interface {
	Insert(ctx context.Context, tx *gorm.DB, e aggregates.Entry) error
	Replace(ctx context.Context, tx *gorm.DB, old, next aggregates.Entry) error
}

type ServiceParams struct {
	Repo       *Repository
	Aggregates aggregateWriter
	Logger     *logger.Logger
	Now        func() time.Time
}

type Service struct {
	repo       *Repository
	aggregates aggregateWriter
	logg       *logger.Logger
	now        func() time.Time
}

type DiscoverInput struct {
	UserID         uuid.UUID
	RepositoryID   uuid.UUID
	WebhookEventID *uuid.UUID
	Number         int
	Title          string
	Body           string
	URL            string
	State          string
	HeadSHA        string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("pull request repository required")
	}
	if params.Aggregates == nil {
		return nil, fmt.Errorf("aggregate maintainer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{repo: params.Repo, aggregates: params.Aggregates, logg: params.Logger, now: now}, nil
}

// Discover upserts the pull request keyed by (repository, number). The aggregate
// entry is only inserted for new rows.
func (s *Service) Discover(ctx context.Context, tx *gorm.DB, input DiscoverInput) (*models.PullRequest, bool, error) {
	if input.Number <= 0 || input.UserID == uuid.Nil || input.RepositoryID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "pull request requires user, repository and number")
	}
	state := strings.TrimSpace(input.State)
	if state == "" {
		state = "open"
	}

	existing, err := s.repo.FindByNumber(ctx, tx, input.RepositoryID, input.Number)
	switch {
	case err == nil:
		existing.Title = input.Title
		existing.Body = input.Body
		existing.URL = input.URL
		existing.State = state
		existing.HeadSHA = input.HeadSHA
		if input.WebhookEventID != nil {
			existing.WebhookEventID = input.WebhookEventID
		}
		if err := s.repo.Refresh(ctx, tx, existing); err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update pull request")
		}
		return existing, false, nil
	case !db.IsNotFound(err):
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pull request")
	}

	pr := &models.PullRequest{
		UserID:         input.UserID,
		RepositoryID:   input.RepositoryID,
		WebhookEventID: input.WebhookEventID,
		Number:         input.Number,
		Title:          input.Title,
		Body:           input.Body,
		URL:            input.URL,
		State:          state,
		HeadSHA:        input.HeadSHA,
	}
	if err := s.repo.Create(ctx, tx, pr); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "pull request already recorded")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create pull request")
	}
	if err := s.aggregates.Insert(ctx, tx, aggregates.PullRequestEntry(pr)); err != nil {
		return nil, false, err
	}
	return pr, true, nil
}

func (s *Service) Load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.PullRequest, error) {
	pr, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pull request not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pull request")
	}
	return pr, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.PullRequest, error) {
	pr, err := s.Load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if pr.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pull request not found")
	}
	return pr, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, userID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list pull requests")
	}
	page, next := pagination.Page(rows, params.Limit, func(p models.PullRequest) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	items := make([]PullRequestDTO, 0, len(page))
	for _, p := range page {
		items = append(items, FromModel(p))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

// ApplySummary mirrors commits.Service.ApplySummary for pull requests.
func (s *Service) ApplySummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int) (*models.PullRequest, error) {
	before, err := s.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetSummary(ctx, tx, id, summary, additions, deletions, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write pull request summary")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "pull request not found")
	}
	after, err := s.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.aggregates.Replace(ctx, tx, aggregates.PullRequestEntry(before), aggregates.PullRequestEntry(after)); err != nil {
		return nil, err
	}
	return after, nil
}
