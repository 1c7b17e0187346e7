package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type InstallationService interface {
	InstallURL(ctx context.Context, userID uuid.UUID) (string, error)
	Complete(ctx context.Context, userID uuid.UUID, installationID int64, state string) (repositories.SyncResult, error)
}

// GitHubInstallURL returns the app installation page with a fresh anti-forgery
// state bound to the caller.
func GitHubInstallURL(svc InstallationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "installation service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}
		url, err := svc.InstallURL(r.Context(), userID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		responses.WriteSuccess(w, map[string]string{"url": url})
	}
}

// GitHubCallback completes an installation started by GitHubInstallURL.
func GitHubCallback(svc InstallationService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			unavailable(w, r, logg, "installation service")
			return
		}
		userID, ok := currentUser(w, r, logg)
		if !ok {
			return
		}

		query := r.URL.Query()
		installationID, err := strconv.ParseInt(strings.TrimSpace(query.Get("installation_id")), 10, 64)
		if err != nil || installationID <= 0 {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "installation_id must be a positive integer"))
			return
		}

		result, err := svc.Complete(r.Context(), userID, installationID, query.Get("state"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"installation_id": installationID,
			"repositories":    result,
		})
	}
}
