package commits

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

// DiscoverInput describes a commit seen in a push payload or a cron sweep.
type DiscoverInput struct {
	UserID         uuid.UUID
	RepositoryID   uuid.UUID
	WebhookEventID *uuid.UUID
	SHA            string
	Message        string
	AuthorName     string
	AuthorEmail    string
	URL            string
	CommittedAt    time.Time
}

type ListParams struct {
	RepositoryID *uuid.UUID
	Limit        int
	Cursor       string
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("commits repository required")
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

// Discover creates the commit record and its aggregate entry in tx. A commit that
// already exists is returned unchanged with created=false.
func (s *Service) Discover(ctx context.Context, tx *gorm.DB, input DiscoverInput) (*models.Commit, bool, error) {
	sha := strings.TrimSpace(input.SHA)
	if sha == "" || input.UserID == uuid.Nil || input.RepositoryID == uuid.Nil {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "commit requires user, repository and sha")
	}
	committedAt := input.CommittedAt
	if committedAt.IsZero() {
		committedAt = s.now()
	}

	commit := &models.Commit{
		UserID:         input.UserID,
		RepositoryID:   input.RepositoryID,
		WebhookEventID: input.WebhookEventID,
		SHA:            sha,
		Message:        input.Message,
		AuthorName:     input.AuthorName,
		AuthorEmail:    input.AuthorEmail,
		URL:            input.URL,
		CommittedAt:    committedAt.UTC(),
	}
	created, err := s.repo.CreateIfAbsent(ctx, tx, commit)
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create commit")
	}
	if !created {
		existing, err := s.repo.FindBySHA(ctx, tx, input.RepositoryID, sha)
		if err != nil {
			return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commit")
		}
		return existing, false, nil
	}
	if err := s.aggregates.Insert(ctx, tx, aggregates.CommitEntry(commit)); err != nil {
		return nil, false, err
	}
	return commit, true, nil
}

// Load fetches a commit without an ownership check, for jobs.
func (s *Service) Load(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Commit, error) {
	commit, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commit not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commit")
	}
	return commit, nil
}

// Get returns the commit if userID owns it.
func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Commit, error) {
	commit, err := s.Load(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	if commit.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commit not found")
	}
	return commit, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, params ListParams) (*ListResult, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, listParams{UserID: userID, RepositoryID: params.RepositoryID, Limit: params.Limit, Cursor: cursor})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list commits")
	}
	page, next := pagination.Page(rows, params.Limit, func(c models.Commit) pagination.Cursor {
		return pagination.Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
	})

	items := make([]CommitDTO, 0, len(page))
	for _, c := range page {
		items = append(items, FromModel(c))
	}
	return &ListResult{Items: items, Cursor: next}, nil
}

// Summarized returns the caller's summarized commits among ids.
func (s *Service) Summarized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Commit, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.repo.ListSummarized(ctx, userID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load commits")
	}
	return rows, nil
}

// ApplySummary stores a new summary, shifting the old one into previous, and
// replaces the commit's aggregate entry. Must run inside tx.
func (s *Service) ApplySummary(ctx context.Context, tx *gorm.DB, id uuid.UUID, summary string, additions, deletions int) (*models.Commit, error) {
	before, err := s.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.SetSummary(ctx, tx, id, summary, additions, deletions, s.now().UTC())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "write commit summary")
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "commit not found")
	}
	after, err := s.Load(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if err := s.aggregates.Replace(ctx, tx, aggregates.CommitEntry(before), aggregates.CommitEntry(after)); err != nil {
		return nil, err
	}
	return after, nil
}
