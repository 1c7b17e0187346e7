package signature

import (
	"encoding/base64"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var svixSecret = "whsec_" + base64.StdEncoding.EncodeToString([]byte("clerk-signing-key"))

func newTestSvix(t *testing.T) *SvixVerifier {
	t.Helper()
	v, err := NewSvixVerifier(svixSecret)
	require.NoError(t, err)
	return v
}

func svixHeaders(t *testing.T, v *SvixVerifier, id string, at time.Time, body []byte) http.Header {
	t.Helper()
	sig, err := v.Sign(id, at, body)
	require.NoError(t, err)
	h := http.Header{}
	h.Set("svix-id", id)
	h.Set("svix-timestamp", strconv.FormatInt(at.Unix(), 10))
	h.Set("svix-signature", sig)
	return h
}

func TestSvixVerifyAcceptsSignedDelivery(t *testing.T) {
	v := newTestSvix(t)
	body := []byte(`{"type":"user.created","data":{"id":"user_123"}}`)

	headers := svixHeaders(t, v, "msg_1", time.Now().Add(-time.Minute), body)
	headers.Set("svix-signature", "v1,bm90LWEtbWF0Y2g= "+headers.Get("svix-signature"))

	assert.NoError(t, v.Verify(body, headers))
}

func TestSvixVerifyFailures(t *testing.T) {
	v := newTestSvix(t)
	body := []byte(`{"type":"user.created"}`)
	now := time.Now()

	missing := svixHeaders(t, v, "msg_1", now, body)
	missing.Del("svix-signature")
	assert.ErrorIs(t, v.Verify(body, missing), ErrSvixSignature)

	stale := svixHeaders(t, v, "msg_1", now.Add(-10*time.Minute), body)
	assert.ErrorIs(t, v.Verify(body, stale), ErrSvixSignature)

	future := svixHeaders(t, v, "msg_1", now.Add(10*time.Minute), body)
	assert.ErrorIs(t, v.Verify(body, future), ErrSvixSignature)

	fresh := svixHeaders(t, v, "msg_1", now, body)
	assert.ErrorIs(t, v.Verify([]byte(`{"type":"user.deleted"}`), fresh), ErrSvixSignature)

	fresh.Set("svix-id", "msg_2")
	assert.ErrorIs(t, v.Verify(body, fresh), ErrSvixSignature)
}

func TestNewSvixVerifierValidatesSecret(t *testing.T) {
	_, err := NewSvixVerifier("  ")
	assert.ErrorIs(t, err, ErrMissingSecret)

	_, err = NewSvixVerifier("whsec_***not base64***")
	assert.Error(t, err)

	_, err = NewSvixVerifier(base64.StdEncoding.EncodeToString([]byte("k")))
	assert.NoError(t, err)
}
