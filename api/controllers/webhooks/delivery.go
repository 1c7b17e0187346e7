package webhooks

import (
	"context"
	"net/http"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	intake "github.com/angelmondragon/commitscribe-backend/internal/webhooks"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type DeliveryGuard interface {
	Claim(ctx context.Context, deliveryID string) (intake.DeliveryState, error)
	Complete(ctx context.Context, deliveryID string) error
	Release(ctx context.Context, deliveryID string) error
}

// deliver runs handle at most once per delivery id. A delivery already
// processed is acknowledged as a duplicate; one still being processed answers
// 409 so the sender retries later. A failed attempt releases the claim.
func deliver(ctx context.Context, w http.ResponseWriter, guard DeliveryGuard, logg *logger.Logger, deliveryID string, handle func(context.Context) error) {
	state, err := guard.Claim(ctx, deliveryID)
	if err != nil {
		responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	}
	switch state {
	case intake.DeliveryDone:
		if logg != nil {
			logg.Info(ctx, "webhook.delivery.duplicate")
		}
		responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
		return
	case intake.DeliveryInFlight:
		responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "delivery is still being processed"))
		return
	}

	if err := handle(ctx); err != nil {
		if releaseErr := guard.Release(ctx, deliveryID); releaseErr != nil && logg != nil {
			logg.Error(ctx, "webhook.delivery.release_failed", releaseErr)
		}
		responses.WriteError(ctx, logg, w, err)
		return
	}

	if err := guard.Complete(ctx, deliveryID); err != nil && logg != nil {
		logg.Error(ctx, "webhook.delivery.complete_failed", err)
	}
	if logg != nil {
		logg.Info(ctx, "webhook.delivery.accepted")
	}
	responses.WriteSuccess(w, map[string]string{"status": "accepted"})
}
