package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	clerkwebhook "github.com/angelmondragon/commitscribe-backend/internal/webhooks/clerk"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

const maxClerkPayload = 1 << 20

type ClerkWebhookService interface {
	HandleDelivery(ctx context.Context, d clerkwebhook.Delivery) error
}

type SvixSignatureVerifier interface {
	Verify(body []byte, headers http.Header) error
}

// ClerkWebhook handles Svix-signed user lifecycle deliveries.
func ClerkWebhook(svc ClerkWebhookService, verifier SvixSignatureVerifier, guard DeliveryGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil || verifier == nil || guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "clerk webhook unavailable"))
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxClerkPayload))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body"))
			return
		}

		if err := verifier.Verify(payload, r.Header); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid webhook signature"))
			return
		}
		deliveryID := r.Header.Get("svix-id")
		if logg != nil {
			ctx = logg.WithDelivery(ctx, "clerk", deliveryID)
		}

		deliver(ctx, w, guard, logg, deliveryID, func(ctx context.Context) error {
			return svc.HandleDelivery(ctx, clerkwebhook.Delivery{ID: deliveryID, Body: payload})
		})
	}
}
