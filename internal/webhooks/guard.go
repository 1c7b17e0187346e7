package webhooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/redis"
)

const (
	markPending = "pending"
	markDone    = "done"

	// pendingTTL bounds how long a crashed attempt blocks the sender's retries.
	pendingTTL = 5 * time.Minute
)

// DeliveryState is the outcome of claiming a delivery id.
type DeliveryState int

const (
	// DeliveryClaimed means the caller owns the delivery and must Complete or
	// Release it.
	DeliveryClaimed DeliveryState = iota
	// DeliveryInFlight means another attempt is still processing it.
	DeliveryInFlight
	// DeliveryDone means an earlier attempt processed it.
	DeliveryDone
)

// DeliveryGuard remembers delivery ids so a redelivered webhook is acknowledged
// without being processed twice. A delivery is marked pending while it is
// processed and done once it succeeded.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
	scope string
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration, scope string) (*DeliveryGuard, error) {
	switch {
	case store == nil:
		return nil, errors.New("idempotency store is required")
	case ttl < 0:
		return nil, errors.New("ttl must be non-negative")
	case scope == "":
		return nil, errors.New("scope is required")
	}
	return &DeliveryGuard{store: store, ttl: ttl, scope: scope}, nil
}

// Claim reserves deliveryID for processing.
func (g *DeliveryGuard) Claim(ctx context.Context, deliveryID string) (DeliveryState, error) {
	if deliveryID == "" {
		return 0, errors.New("delivery id is required")
	}
	key := g.key(deliveryID)
	for range 2 {
		set, err := g.store.SetNX(ctx, key, markPending, pendingTTL)
		if err != nil {
			return 0, fmt.Errorf("claim delivery %s: %w", deliveryID, err)
		}
		if set {
			return DeliveryClaimed, nil
		}
		mark, err := g.store.Get(ctx, key)
		if err != nil && !errors.Is(err, redis.ErrNil) {
			return 0, fmt.Errorf("read delivery %s: %w", deliveryID, err)
		}
		switch mark {
		case markDone:
			return DeliveryDone, nil
		case markPending:
			return DeliveryInFlight, nil
		}
		// The mark expired between SETNX and GET; try once more.
	}
	return DeliveryInFlight, nil
}

// Complete records that deliveryID was processed.
func (g *DeliveryGuard) Complete(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	if err := g.store.Set(ctx, g.key(deliveryID), markDone, g.ttl); err != nil {
		return fmt.Errorf("complete delivery %s: %w", deliveryID, err)
	}
	return nil
}

// Release drops the claim so the sender's retry is processed.
func (g *DeliveryGuard) Release(ctx context.Context, deliveryID string) error {
	if deliveryID == "" {
		return errors.New("delivery id is required")
	}
	if err := g.store.Del(ctx, g.key(deliveryID)); err != nil {
		return fmt.Errorf("release delivery %s: %w", deliveryID, err)
	}
	return nil
}

func (g *DeliveryGuard) key(deliveryID string) string {
	return g.store.IdempotencyKey(g.scope, deliveryID)
}
