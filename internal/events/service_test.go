package events

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/angelmondragon/commitscribe-backend/pkg/db/dbtest"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	"github.com/angelmondragon/commitscribe-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (*Service, *gorm.DB, *time.Time) {
	t.Helper()
	conn := dbtest.Open(t)
	now := time.Date(2026, 9, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(ServiceParams{
		Repo:   NewRepository(conn),
		Logger: logger.Nop(),
		Now:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return svc, conn, &now
}

func recordPush(t *testing.T, svc *Service) uuid.UUID {
	t.Helper()
	id, err := svc.Record(context.Background(), nil, RecordInput{
		Platform:   enums.PlatformGitHub,
		EventType:  "push",
		DeliveryID: "delivery-1",
		Payload:    []byte(`{"after":"abc"}`),
	})
	require.NoError(t, err)
	return id
}

func TestRecordInsertsPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := recordPush(t, svc)

	event, err := svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusPending, event.Status)
	assert.Equal(t, "push", event.EventType)
	assert.JSONEq(t, `{"after":"abc"}`, string(event.RawPayload))
	assert.Zero(t, event.Attempts)
}

func TestRecordValidatesInput(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, nil, RecordInput{Platform: "gitlab", EventType: "push", Payload: []byte(`{}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Record(ctx, nil, RecordInput{Platform: enums.PlatformGitHub, EventType: " ", Payload: []byte(`{}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Record(ctx, nil, RecordInput{Platform: enums.PlatformGitHub, EventType: "push", Payload: []byte(`{`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestUpdateStatusIsIdempotent(t *testing.T) {
	svc, _, now := newTestService(t)
	ctx := context.Background()
	id := recordPush(t, svc)

	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusSuccess, nil))
	first, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusSuccess, first.Status)

	*now = now.Add(time.Minute)
	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusSuccess, nil))
	second, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusSuccess, second.Status)
	assert.True(t, second.UpdatedAt.After(first.UpdatedAt))
}

func TestUpdateStatusLastWriteWinsAndRecordsError(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := recordPush(t, svc)

	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusFailed, errors.New("diff fetch: 404")))
	event, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusFailed, event.Status)
	require.NotNil(t, event.LastError)
	assert.Equal(t, "diff fetch: 404", *event.LastError)

	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusSuccess, nil))
	event, err = svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusSuccess, event.Status)
	assert.Nil(t, event.LastError)
}

func TestLongErrorIsStoredAsValidUTF8(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := recordPush(t, svc)

	// One ASCII byte shifts every two-byte rune across the length limit.
	cause := errors.New("x" + strings.Repeat("é", maxErrorLength))
	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusFailed, cause))

	event, err := svc.Get(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, event.LastError)
	assert.True(t, utf8.ValidString(*event.LastError))
	assert.LessOrEqual(t, len(*event.LastError), maxErrorLength)
	assert.Equal(t, maxErrorLength-1, len(*event.LastError))
}

func TestUpdateStatusNeverReturnsToPending(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := recordPush(t, svc)
	require.NoError(t, svc.UpdateStatus(ctx, id, enums.EventStatusSuccess, nil))

	err := svc.UpdateStatus(ctx, id, enums.EventStatusPending, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	event, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusSuccess, event.Status)
}

func TestUpdateStatusUnknownEvent(t *testing.T) {
	svc, _, _ := newTestService(t)
	err := svc.UpdateStatus(context.Background(), uuid.New(), enums.EventStatusSuccess, nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkAttemptIncrements(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	id := recordPush(t, svc)

	require.NoError(t, svc.MarkAttempt(ctx, id))
	require.NoError(t, svc.MarkAttempt(ctx, id))

	event, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, event.Attempts)
}

func TestRecordJoinsTransaction(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()

	err := conn.Transaction(func(tx *gorm.DB) error {
		if _, err := svc.Record(ctx, tx, RecordInput{Platform: enums.PlatformGitHub, EventType: "push", Payload: []byte(`{}`)}); err != nil {
			return err
		}
		return errors.New("schedule failed")
	})
	require.Error(t, err)

	var count int64
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFailStaleOnlyTouchesOldPending(t *testing.T) {
	svc, conn, now := newTestService(t)
	ctx := context.Background()

	old := recordPush(t, svc)
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", old).
		UpdateColumn("created_at", now.Add(-3*time.Hour)).Error)
	fresh := recordPush(t, svc)
	require.NoError(t, conn.Model(&models.WebhookEvent{}).Where("id = ?", fresh).
		UpdateColumn("created_at", now.Add(-time.Minute)).Error)

	count, err := svc.FailStale(ctx, 2*time.Hour)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)

	event, err := svc.Get(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusFailed, event.Status)
	event, err = svc.Get(ctx, fresh)
	require.NoError(t, err)
	assert.Equal(t, enums.EventStatusPending, event.Status)
}

func TestListFiltersByStatus(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	a := recordPush(t, svc)
	recordPush(t, svc)
	require.NoError(t, svc.UpdateStatus(ctx, a, enums.EventStatusFailed, errors.New("boom")))

	result, err := svc.List(ctx, ListParams{Status: enums.EventStatusFailed})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	assert.Equal(t, a, result.Items[0].ID)

	_, err = svc.List(ctx, ListParams{Status: "nope"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
