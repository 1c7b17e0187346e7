package webhooks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/internal/webhooks/webhooktest"
)

func TestDeliveryGuardLifecycle(t *testing.T) {
	ctx := context.Background()
	guard, err := NewDeliveryGuard(webhooktest.NewStore(), time.Hour, "github")
	require.NoError(t, err)

	state, err := guard.Claim(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryClaimed, state)

	state, err = guard.Claim(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryInFlight, state, "a retry racing the first attempt is not acknowledged")

	require.NoError(t, guard.Complete(ctx, "d-1"))
	state, err = guard.Claim(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, DeliveryDone, state)
}

func TestReleasedDeliveryIsClaimedAgain(t *testing.T) {
	ctx := context.Background()
	guard, err := NewDeliveryGuard(webhooktest.NewStore(), time.Hour, "github")
	require.NoError(t, err)

	_, err = guard.Claim(ctx, "d-2")
	require.NoError(t, err)
	require.NoError(t, guard.Release(ctx, "d-2"))

	state, err := guard.Claim(ctx, "d-2")
	require.NoError(t, err)
	assert.Equal(t, DeliveryClaimed, state, "released delivery is processed again")
}

func TestDeliveryGuardValidation(t *testing.T) {
	_, err := NewDeliveryGuard(nil, time.Hour, "github")
	assert.Error(t, err)
	_, err = NewDeliveryGuard(webhooktest.NewStore(), -time.Second, "github")
	assert.Error(t, err)
	_, err = NewDeliveryGuard(webhooktest.NewStore(), time.Hour, "")
	assert.Error(t, err)

	guard, err := NewDeliveryGuard(webhooktest.NewStore(), 0, "clerk")
	require.NoError(t, err)
	_, err = guard.Claim(context.Background(), "")
	assert.Error(t, err)
	assert.Error(t, guard.Complete(context.Background(), ""))
	assert.Error(t, guard.Release(context.Background(), ""))
}
