package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/api/validators"
	"github.com/angelmondragon/commitscribe-backend/internal/commits"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
)

type CommitReader interface {
	List(ctx context.Context, userID uuid.UUID, params commits.ListParams) (*commits.ListResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.Commit, error)
}

type CommitRegenerator interface {
	RegenerateCommit(ctx context.Context, userID, commitID uuid.UUID, instruction string) (*models.Commit, error)
}

type regenerateRequest struct {
	Instruction string `json:"instruction" validate:"required,max=2000"`
}

// ListCommits pages the caller's commits, newest first. ?repository_id narrows
// to one repository.
func ListCommits(svc CommitReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commit service")
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
		repositoryID, err := validators.ParseQueryUUID(r, "repository_id")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), userID, commits.ListParams{
			RepositoryID: repositoryID,
			Limit:        limit,
			Cursor:       r.URL.Query().Get("cursor"),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetCommit(svc CommitReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "commit service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "commitID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		commit, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, commits.FromModel(*commit))
	}
}

// RegenerateCommit rewrites the summary following the caller's instruction. The
// replaced summary stays available as previous_summary.
func RegenerateCommit(pipeline CommitRegenerator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pipeline == nil {
			unavailable(w, r, logg, "summary pipeline")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "commitID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req regenerateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		commit, err := pipeline.RegenerateCommit(r.Context(), userID, id, validators.SanitizeString(req.Instruction, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, commits.FromModel(*commit))
	}
}
