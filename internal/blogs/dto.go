package blogs

import (
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/google/uuid"
)

type BlogDTO struct {
	ID        uuid.UUID   `json:"id"`
	Title     string      `json:"title"`
	Content   string      `json:"content"`
	CommitIDs []uuid.UUID `json:"commit_ids"`
	CreatedAt time.Time   `json:"created_at"`
}

func FromModel(b models.Blog) BlogDTO {
	ids := []uuid.UUID(b.CommitIDs)
	if ids == nil {
		ids = []uuid.UUID{}
	}
	return BlogDTO{ID: b.ID, Title: b.Title, Content: b.Content, CommitIDs: ids, CreatedAt: b.CreatedAt}
}
