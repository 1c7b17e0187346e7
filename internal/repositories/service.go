package repositories

import (
	"context"
	"fmt"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type aggregateWriter interface {
	Insert(ctx context.Context, tx *gorm.DB, e aggregates.Entry) error
	Delete(ctx context.Context, tx *gorm.DB, aggregate enums.Aggregate, recordID uuid.UUID) error
}

type ServiceParams struct {
	Repo       *Repository
	Aggregates aggregateWriter
	Logger     *logger.Logger
}

// Service mirrors the repositories visible to each user's GitHub installation.
type Service struct {
	repo       *Repository
	aggregates aggregateWriter
	logg       *logger.Logger
}

// SyncResult counts the changes applied by a sync.
type SyncResult struct {
	Added   int `json:"added"`
	Updated int `json:"updated"`
	Removed int `json:"removed"`
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("repositories repository required")
	}
	if params.Aggregates == nil {
		return nil, fmt.Errorf("aggregate maintainer required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{repo: params.Repo, aggregates: params.Aggregates, logg: params.Logger}, nil
}

// Sync makes the user's rows for installationID match remote exactly. Must run
// inside tx.
func (s *Service) Sync(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, remote []github.Repository) (SyncResult, error) {
	var result SyncResult
	existing, err := s.repo.ListByInstallation(ctx, tx, installationID)
	if err != nil {
		return result, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list repositories")
	}

	seen := make(map[int64]struct{}, len(remote))
	for _, r := range remote {
		seen[r.ID] = struct{}{}
	}
	for i := range existing {
		if _, ok := seen[existing[i].GitHubRepoID]; ok && existing[i].UserID == userID {
			continue
		}
		if err := s.remove(ctx, tx, &existing[i]); err != nil {
			return result, err
		}
		result.Removed++
	}

	added, updated, err := s.upsert(ctx, tx, userID, installationID, remote)
	result.Added, result.Updated = added, updated
	if err != nil {
		return result, err
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"user_id":         userID.String(),
		"installation_id": installationID,
		"added":           result.Added,
		"updated":         result.Updated,
		"removed":         result.Removed,
	}), "repositories synced")
	return result, nil
}

// Add upserts repositories granted to an installation.
func (s *Service) Add(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, repos []github.Repository) (int, error) {
	added, _, err := s.upsert(ctx, tx, userID, installationID, repos)
	return added, err
}

// Remove deletes repositories revoked from an installation. Unknown ids are ignored.
func (s *Service) Remove(ctx context.Context, tx *gorm.DB, installationID int64, githubRepoIDs []int64) (int, error) {
	removed := 0
	for _, id := range githubRepoIDs {
		row, err := s.repo.FindByGitHubID(ctx, tx, installationID, id)
		if err != nil {
			if db.IsNotFound(err) {
				continue
			}
			return removed, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repository")
		}
		if err := s.remove(ctx, tx, row); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// RemoveInstallation drops every repository of an uninstalled app.
func (s *Service) RemoveInstallation(ctx context.Context, tx *gorm.DB, installationID int64) (int, error) {
	rows, err := s.repo.ListByInstallation(ctx, tx, installationID)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list repositories")
	}
	for i := range rows {
		if err := s.remove(ctx, tx, &rows[i]); err != nil {
			return i, err
		}
	}
	return len(rows), nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID) ([]models.Repository, error) {
	rows, err := s.repo.ListByUser(ctx, nil, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list repositories")
	}
	return rows, nil
}

func (s *Service) Get(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Repository, error) {
	row, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repository not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repository")
	}
	return row, nil
}

// ByGitHubID resolves the local row for a repository referenced by a webhook.
func (s *Service) ByGitHubID(ctx context.Context, tx *gorm.DB, installationID, githubRepoID int64) (*models.Repository, error) {
	row, err := s.repo.FindByGitHubID(ctx, tx, installationID, githubRepoID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "repository not linked")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repository")
	}
	return row, nil
}

// Owned filters ids down to repositories owned by userID.
func (s *Service) Owned(ctx context.Context, tx *gorm.DB, userID uuid.UUID, ids []uuid.UUID) ([]models.Repository, error) {
	rows, err := s.repo.ListOwned(ctx, tx, userID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load repositories")
	}
	return rows, nil
}

func (s *Service) upsert(ctx context.Context, tx *gorm.DB, userID uuid.UUID, installationID int64, repos []github.Repository) (added, updated int, err error) {
	for _, r := range repos {
		row, findErr := s.repo.FindByGitHubID(ctx, tx, installationID, r.ID)
		switch {
		case findErr == nil:
			row.Owner, row.Name, row.FullName = r.Owner, r.Name, r.FullName
			row.Private = r.Private
			if r.DefaultBranch != "" {
				row.DefaultBranch = r.DefaultBranch
			}
			if err := s.repo.Save(ctx, tx, row); err != nil {
				return added, updated, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update repository")
			}
			updated++
		case db.IsNotFound(findErr):
			row := fromGitHub(userID, installationID, r)
			if err := s.repo.Create(ctx, tx, row); err != nil {
				return added, updated, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create repository")
			}
			if err := s.aggregates.Insert(ctx, tx, aggregates.RepositoryEntry(row)); err != nil {
				return added, updated, err
			}
			added++
		default:
			return added, updated, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "load repository")
		}
	}
	return added, updated, nil
}

// remove deletes a repository with its commits and pull requests. Children are
// deleted explicitly so their aggregate entries leave with them.
func (s *Service) remove(ctx context.Context, tx *gorm.DB, row *models.Repository) error {
	children := []struct {
		model     any
		aggregate enums.Aggregate
	}{
		{model: &models.Commit{}, aggregate: enums.AggregateCommits},
		{model: &models.PullRequest{}, aggregate: enums.AggregatePullRequests},
	}
	for _, child := range children {
		ids, err := s.repo.childIDs(ctx, tx, child.model, row.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list repository children")
		}
		for _, id := range ids {
			if err := s.aggregates.Delete(ctx, tx, child.aggregate, id); err != nil {
				return err
			}
		}
		if err := s.repo.deleteChildren(ctx, tx, child.model, row.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete repository children")
		}
	}

	if err := s.aggregates.Delete(ctx, tx, enums.AggregateRepositories, row.ID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, tx, row.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete repository")
	}
	return nil
}

func fromGitHub(userID uuid.UUID, installationID int64, r github.Repository) *models.Repository {
	branch := r.DefaultBranch
	if branch == "" {
		branch = "main"
	}
	return &models.Repository{
		UserID:         userID,
		GitHubRepoID:   r.ID,
		InstallationID: installationID,
		Owner:          r.Owner,
		Name:           r.Name,
		FullName:       r.FullName,
		Private:        r.Private,
		DefaultBranch:  branch,
	}
}
