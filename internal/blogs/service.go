package blogs

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	dbtypes "github.com/angelmondragon/commitscribe-backend/pkg/db/types"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/llm"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MaxCommitsPerPost bounds how many commit summaries feed one post.
const MaxCommitsPerPost = 50

type summarySource interface {
	Summarized(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) ([]models.Commit, error)
}

type generator interface {
	Generate(ctx context.Context, req llm.Request) (string, error)
}

type aggregateWriter interface {
	Insert(ctx context.Context, tx *gorm.DB, e aggregates.Entry) error
	Delete(ctx context.Context, tx *gorm.DB, aggregate enums.Aggregate, recordID uuid.UUID) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	Repo       *Repository
	Tx         txRunner
	Commits    summarySource
	Generator  generator
	Aggregates aggregateWriter
	Logger     *logger.Logger
}

type Service struct {
	repo       *Repository
	tx         txRunner
	commits    summarySource
	generator  generator
	aggregates aggregateWriter
	logg       *logger.Logger
}

type GenerateInput struct {
	CommitIDs   []uuid.UUID
	Title       string
	Instruction string
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("blogs repository required")
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Commits == nil:
		return nil, fmt.Errorf("commits service required")
	case params.Generator == nil:
		return nil, fmt.Errorf("generator required")
	case params.Aggregates == nil:
		return nil, fmt.Errorf("aggregate maintainer required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		repo:       params.Repo,
		tx:         params.Tx,
		commits:    params.Commits,
		generator:  params.Generator,
		aggregates: params.Aggregates,
		logg:       params.Logger,
	}, nil
}

// Generate writes a post from the caller's summarized commits. Commits without a
// summary or owned by someone else are ignored; at least one must remain.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, input GenerateInput) (*models.Blog, error) {
	ids := dbtypes.UUIDArray(input.CommitIDs).Normalize()
	if len(ids) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one commit is required")
	}
	if len(ids) > MaxCommitsPerPost {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d commits per post", MaxCommitsPerPost))
	}

	rows, err := s.commits.Summarized(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "none of the selected commits has a summary")
	}

	data := postData{Title: strings.TrimSpace(input.Title), Instruction: strings.TrimSpace(input.Instruction)}
	used := make(dbtypes.UUIDArray, 0, len(rows))
	for _, c := range rows {
		data.Entries = append(data.Entries, postEntry{CommittedAt: c.CommittedAt, Message: firstLine(c.Message), Summary: *c.Summary})
		used = append(used, c.ID)
	}
	prompt, err := renderPrompt(data)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "render blog prompt")
	}

	content, err := s.generator.Generate(ctx, llm.Request{System: systemPrompt, Prompt: prompt})
	if err == nil && strings.TrimSpace(content) == "" {
		err = llm.ErrEmptyCompletion
	}
	if err != nil {
		s.logg.Error(s.logg.WithUserID(ctx, userID.String()), "blog generation failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "generate blog")
	}

	fallback := data.Title
	if fallback == "" {
		fallback = firstLine(rows[len(rows)-1].Message)
	}
	title, body := splitTitle(content, fallback)
	if data.Title != "" {
		title = data.Title
	}

	blog := &models.Blog{UserID: userID, Title: title, Content: body, CommitIDs: used}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, blog); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create blog")
		}
		return s.aggregates.Insert(ctx, tx, aggregates.BlogEntry(blog))
	})
	if err != nil {
		return nil, err
	}
	return blog, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Blog, error) {
	rows, err := s.repo.ListByUser(ctx, userID, pagination.NormalizeLimit(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list blogs")
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, userID, id uuid.UUID) (*models.Blog, error) {
	return s.loadOwned(ctx, nil, userID, id)
}

func (s *Service) Delete(ctx context.Context, userID, id uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		blog, err := s.loadOwned(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if err := s.aggregates.Delete(ctx, tx, enums.AggregateBlogs, blog.ID); err != nil {
			return err
		}
		if err := s.repo.Delete(ctx, tx, blog.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete blog")
		}
		return nil
	})
}

func (s *Service) loadOwned(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Blog, error) {
	blog, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "blog not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load blog")
	}
	if blog.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "blog not found")
	}
	return blog, nil
}
