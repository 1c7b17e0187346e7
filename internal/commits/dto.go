package commits

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
)

type CommitDTO struct {
	ID                 uuid.UUID  `json:"id"`
	RepositoryID       uuid.UUID  `json:"repository_id"`
	SHA                string     `json:"sha"`
	Message            string     `json:"message"`
	AuthorName         string     `json:"author_name"`
	URL                string     `json:"url,omitempty"`
	CommittedAt        time.Time  `json:"committed_at"`
	Additions          int        `json:"additions"`
	Deletions          int        `json:"deletions"`
	Summary            *string    `json:"summary,omitempty"`
	PreviousSummary    *string    `json:"previous_summary,omitempty"`
	SummaryGeneratedAt *time.Time `json:"summary_generated_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
}

func FromModel(c models.Commit) CommitDTO {
	return CommitDTO{
		ID:                 c.ID,
		RepositoryID:       c.RepositoryID,
		SHA:                c.SHA,
		Message:            c.Message,
		AuthorName:         c.AuthorName,
		URL:                c.URL,
		CommittedAt:        c.CommittedAt,
		Additions:          c.Additions,
		Deletions:          c.Deletions,
		Summary:            c.Summary,
		PreviousSummary:    c.PreviousSummary,
		SummaryGeneratedAt: c.SummaryGeneratedAt,
		CreatedAt:          c.CreatedAt,
	}
}

type ListResult struct {
	Items  []CommitDTO `json:"items"`
	Cursor string      `json:"cursor"`
}
