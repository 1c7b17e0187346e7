package webhooks

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/internal/webhooks"
	clerkwebhook "github.com/angelmondragon/commitscribe-backend/internal/webhooks/clerk"
	"github.com/angelmondragon/commitscribe-backend/internal/webhooks/webhooktest"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
	"github.com/angelmondragon/commitscribe-backend/pkg/signature"
)

type stubClerkService struct {
	calls []clerkwebhook.Delivery
}

func (s *stubClerkService) HandleDelivery(_ context.Context, d clerkwebhook.Delivery) error {
	s.calls = append(s.calls, d)
	return nil
}

func clerkFixture(t *testing.T) (*signature.SvixVerifier, http.HandlerFunc, *stubClerkService) {
	t.Helper()
	secret := "whsec_" + base64.StdEncoding.EncodeToString([]byte("clerk-signing-key"))
	verifier, err := signature.NewSvixVerifier(secret)
	require.NoError(t, err)
	guard, err := webhooks.NewDeliveryGuard(webhooktest.NewStore(), time.Hour, "clerk")
	require.NoError(t, err)
	svc := &stubClerkService{}
	return verifier, ClerkWebhook(svc, verifier, guard, logger.Nop()), svc
}

func clerkRequest(body []byte, id string, ts time.Time, sig string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/clerk", bytes.NewReader(body))
	req.Header.Set("svix-id", id)
	req.Header.Set("svix-timestamp", strconv.FormatInt(ts.Unix(), 10))
	req.Header.Set("svix-signature", sig)
	return req
}

func sign(t *testing.T, verifier *signature.SvixVerifier, id string, ts time.Time, body []byte) string {
	t.Helper()
	sig, err := verifier.Sign(id, ts, body)
	require.NoError(t, err)
	return sig
}

func TestClerkWebhookAcceptsSignedDeliveryOnce(t *testing.T) {
	verifier, handler, svc := clerkFixture(t)
	body := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	now := time.Now()
	sig := sign(t, verifier, "msg_1", now, body)

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, clerkRequest(body, "msg_1", now, sig))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	require.Len(t, svc.calls, 1)
	assert.Equal(t, "msg_1", svc.calls[0].ID)
}

func TestClerkWebhookRejectsTamperedBody(t *testing.T) {
	verifier, handler, svc := clerkFixture(t)
	now := time.Now()
	sig := sign(t, verifier, "msg_2", now, []byte(`{"type":"user.created"}`))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, clerkRequest([]byte(`{"type":"user.deleted"}`), "msg_2", now, sig))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}

func TestClerkWebhookRejectsStaleTimestamp(t *testing.T) {
	verifier, handler, svc := clerkFixture(t)
	body := []byte(`{"type":"user.created","data":{"id":"user_1"}}`)
	old := time.Now().Add(-time.Hour)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, clerkRequest(body, "msg_3", old, sign(t, verifier, "msg_3", old, body)))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, svc.calls)
}
