package repositories

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
)

type RepositoryDTO struct {
	ID            uuid.UUID `json:"id"`
	GitHubRepoID  int64     `json:"github_repo_id"`
	Owner         string    `json:"owner"`
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	Private       bool      `json:"private"`
	DefaultBranch string    `json:"default_branch"`
	CreatedAt     time.Time `json:"created_at"`
}

func FromModel(r models.Repository) RepositoryDTO {
	return RepositoryDTO{
		ID:            r.ID,
		GitHubRepoID:  r.GitHubRepoID,
		Owner:         r.Owner,
		Name:          r.Name,
		FullName:      r.FullName,
		Private:       r.Private,
		DefaultBranch: r.DefaultBranch,
		CreatedAt:     r.CreatedAt,
	}
}
