package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/api/validators"
	"github.com/angelmondragon/commitscribe-backend/internal/blogs"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
)

type BlogService interface {
	Generate(ctx context.Context, userID uuid.UUID, input blogs.GenerateInput) (*models.Blog, error)
	List(ctx context.Context, userID uuid.UUID, limit int) ([]models.Blog, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Blog, error)
	Delete(ctx context.Context, userID, id uuid.UUID) error
}

type blogGenerateRequest struct {
	CommitIDs   []uuid.UUID `json:"commit_ids" validate:"required,min=1"`
	Title       string      `json:"title" validate:"max=200"`
	Instruction string      `json:"instruction" validate:"max=2000"`
}

// GenerateBlog writes a post from summarized commits. Generation is slow and
// billed, so the route requires an Idempotency-Key.
func GenerateBlog(svc BlogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "blog service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		var req blogGenerateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		blog, err := svc.Generate(r.Context(), userID, blogs.GenerateInput{
			CommitIDs:   req.CommitIDs,
			Title:       validators.SanitizeString(req.Title, 200),
			Instruction: validators.SanitizeString(req.Instruction, 2000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, blogs.FromModel(*blog))
	}
}

func ListBlogs(svc BlogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "blog service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.List(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		items := make([]blogs.BlogDTO, 0, len(rows))
		for _, row := range rows {
			items = append(items, blogs.FromModel(row))
		}
		responses.WriteSuccess(w, items)
	}
}

func GetBlog(svc BlogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "blog service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "blogID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		blog, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, blogs.FromModel(*blog))
	}
}

func DeleteBlog(svc BlogService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "blog service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "blogID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), userID, id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
