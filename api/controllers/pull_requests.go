package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/api/validators"
	"github.com/angelmondragon/commitscribe-backend/internal/pullrequests"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/pagination"
)

type PullRequestReader interface {
	List(ctx context.Context, userID uuid.UUID, params pagination.Params) (*pullrequests.ListResult, error)
	Get(ctx context.Context, userID, id uuid.UUID) (*models.PullRequest, error)
}

type PullRequestRegenerator interface {
	RegeneratePullRequest(ctx context.Context, userID, pullRequestID uuid.UUID, instruction string) (*models.PullRequest, error)
}

func ListPullRequests(svc PullRequestReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "pull request service")
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

		result, err := svc.List(r.Context(), userID, pagination.Params{Limit: limit, Cursor: r.URL.Query().Get("cursor")})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetPullRequest(svc PullRequestReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "pull request service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "pullRequestID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pr, err := svc.Get(r.Context(), userID, id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pullrequests.FromModel(*pr))
	}
}

func RegeneratePullRequest(pipeline PullRequestRegenerator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if pipeline == nil {
			unavailable(w, r, logg, "summary pipeline")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		id, err := validators.ParseUUIDParam(r, "pullRequestID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req regenerateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		pr, err := pipeline.RegeneratePullRequest(r.Context(), userID, id, validators.SanitizeString(req.Instruction, 2000))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, pullrequests.FromModel(*pr))
	}
}
