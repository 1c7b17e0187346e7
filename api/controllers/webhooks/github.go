package webhooks

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	githubwebhook "github.com/angelmondragon/commitscribe-backend/internal/webhooks/github"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

// GitHub caps webhook payloads at 25MB.
const maxGitHubPayload = 25 << 20

type GitHubWebhookService interface {
	HandleDelivery(ctx context.Context, d githubwebhook.Delivery) error
}

type GitHubSignatureVerifier interface {
	Verify(body []byte, header string) bool
}

// GitHubWebhook verifies X-Hub-Signature-256 before anything is read into the
// event store. Redeliveries of a processed delivery id are acknowledged without
// work.
func GitHubWebhook(svc GitHubWebhookService, verifier GitHubSignatureVerifier, guard DeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if verifier == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "signature verifier unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxGitHubPayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if !verifier.Verify(payload, r.Header.Get("X-Hub-Signature-256")) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "invalid webhook signature"))
			return
		}

		eventType := strings.TrimSpace(r.Header.Get("X-GitHub-Event"))
		deliveryID := strings.TrimSpace(r.Header.Get("X-GitHub-Delivery"))
		if eventType == "" || deliveryID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "X-GitHub-Event and X-GitHub-Delivery headers required"))
			return
		}
		if logg != nil {
			ctx = logg.WithDelivery(ctx, "github", deliveryID)
			ctx = logg.WithField(ctx, "github_event", eventType)
		}

		deliver(ctx, w, guard, logg, deliveryID, func(ctx context.Context) error {
			return svc.HandleDelivery(ctx, githubwebhook.Delivery{Event: eventType, ID: deliveryID, Body: payload})
		})
	}
}
