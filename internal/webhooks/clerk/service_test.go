package clerkwebhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/commitscribe-backend/internal/aggregates"
	"github.com/angelmondragon/commitscribe-backend/internal/events"
	"github.com/angelmondragon/commitscribe-backend/internal/repositories"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	"github.com/angelmondragon/commitscribe-backend/pkg/db"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/github"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type harness struct {
	conn    *gorm.DB
	client  *db.Client
	service *Service
	users   *users.Service
	repos   *repositories.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := dbtest.Open(t)
	client := db.Wrap(conn)
	logg := logger.Nop()

	aggs, err := aggregates.NewMaintainer(aggregates.MaintainerParams{DB: conn, Tx: client, Logger: logg})
	require.NoError(t, err)
	userSvc, err := users.NewService(users.ServiceParams{Repo: users.NewRepository(conn), Logger: logg})
	require.NoError(t, err)
	repoSvc, err := repositories.NewService(repositories.ServiceParams{Repo: repositories.NewRepository(conn), Aggregates: aggs, Logger: logg})
	require.NoError(t, err)
	eventSvc, err := events.NewService(events.ServiceParams{Repo: events.NewRepository(conn), Logger: logg})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{Tx: client, Events: eventSvc, Users: userSvc, Repositories: repoSvc, Logger: logg})
	require.NoError(t, err)
	return &harness{conn: conn, client: client, service: svc, users: userSvc, repos: repoSvc}
}

const createdBody = `{"type":"user.created","data":{
	"id":"user_123",
	"username":"dev",
	"primary_email_address_id":"idn_2",
	"email_addresses":[{"id":"idn_1","email_address":"old@example.com"},{"id":"idn_2","email_address":"dev@example.com"}]
}}`

func TestUserCreatedProvisionsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_1", Body: []byte(createdBody)}))
	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_2", Body: []byte(createdBody)}))

	user, err := h.users.ByClerkID(ctx, "user_123")
	require.NoError(t, err)
	assert.Equal(t, "dev@example.com", user.Email)
	require.NotNil(t, user.Username)
	assert.Equal(t, "dev", *user.Username)

	var count int64
	require.NoError(t, h.conn.Model(&models.User{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	var recorded []models.WebhookEvent
	require.NoError(t, h.conn.Find(&recorded).Error)
	require.Len(t, recorded, 2)
	for _, e := range recorded {
		assert.Equal(t, enums.PlatformClerk, e.Platform)
		assert.Equal(t, enums.EventStatusSuccess, e.Status)
	}
}

func TestUserDeletedUnlinksInstallation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_1", Body: []byte(createdBody)}))
	user, err := h.users.ByClerkID(ctx, "user_123")
	require.NoError(t, err)
	require.NoError(t, h.client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := h.users.LinkInstallation(ctx, tx, user.ID, 7, "acme"); err != nil {
			return err
		}
		_, err := h.repos.Add(ctx, tx, user.ID, 7, []github.Repository{{ID: 11, Owner: "acme", Name: "api", FullName: "acme/api"}})
		return err
	}))

	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_2", Body: []byte(`{"type":"user.deleted","data":{"id":"user_123","deleted":true}}`)}))

	user, err = h.users.ByClerkID(ctx, "user_123")
	require.NoError(t, err)
	assert.Nil(t, user.GitHubInstallationID)
	repos, err := h.repos.List(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, repos)
}

func TestOtherEventsAreIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_1", Body: []byte(`{"type":"session.created","data":{}}`)}))
	require.NoError(t, h.service.HandleDelivery(ctx, Delivery{ID: "msg_2", Body: []byte(`{"type":"user.deleted","data":{"id":"user_unknown"}}`)}))

	var count int64
	require.NoError(t, h.conn.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)

	err := h.service.HandleDelivery(ctx, Delivery{ID: "msg_3", Body: []byte(`{"type":"user.created","data":{}}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	err = h.service.HandleDelivery(ctx, Delivery{ID: "msg_4", Body: []byte(`nope`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
