package pullrequests

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
)

type PullRequestDTO struct {
	ID                 uuid.UUID  `json:"id"`
	RepositoryID       uuid.UUID  `json:"repository_id"`
	Number             int        `json:"number"`
	Title              string     `json:"title"`
	URL                string     `json:"url,omitempty"`
	State              string     `json:"state"`
	Additions          int        `json:"additions"`
	Deletions          int        `json:"deletions"`
	Summary            *string    `json:"summary,omitempty"`
	PreviousSummary    *string    `json:"previous_summary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func FromModel(p models.PullRequest) PullRequestDTO {
	return PullRequestDTO{
		ID:                 p.ID,
		RepositoryID:       p.RepositoryID,
		Number:             p.Number,
		Title:              p.Title,
		URL:                p.URL,
		State:              p.State,
		Additions:          p.Additions,
		Deletions:          p.Deletions,
		Summary:            p.Summary,
		PreviousSummary:    p.PreviousSummary,
		SummaryGeneratedAt: p.SummaryGeneratedAt,
		CreatedAt:          p.CreatedAt,
	}
}

type ListResult struct {
	Items  []PullRequestDTO `json:"items"`
	Cursor string           `json:"cursor"`
}
