package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/internal/webhooks/webhooktest"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

func TestRuleSelection(t *testing.T) {
	cases := []struct {
		method   string
		pattern  string
		ttl      time.Duration
		required bool
		ok       bool
	}{
		{http.MethodPost, "/api/v1/blogs", generationTTL, true, true},
		{http.MethodPost, "/api/v1/commits/{commitID}/regenerate", generationTTL, false, true},
		{http.MethodPost, "/api/v1/pull-requests/{pullRequestID}/regenerate", generationTTL, false, true},
		{http.MethodPost, "/api/v1/crons", defaultIdempotencyTTL, false, true},
		{http.MethodGet, "/api/v1/blogs", 0, false, false},
		{http.MethodPost, "/api/v1/webhooks/github", 0, false, false},
	}
	for _, tc := range cases {
		rule, ok := matchRule(tc.method, tc.pattern)
		assert.Equal(t, tc.ok, ok, tc.pattern)
		if tc.ok {
			assert.Equal(t, tc.ttl, rule.ttl, tc.pattern)
			assert.Equal(t, tc.required, rule.required, tc.pattern)
		}
	}
}

func TestIdempotencyRequiresHeaderOnBlogGeneration(t *testing.T) {
	handler := Idempotency(webhooktest.NewStore(), logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{}`, ""))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotencyOptionalKeyPassesThrough(t *testing.T) {
	store := webhooktest.NewStore()
	calls := 0
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/crons", "/api/v1/crons", `{"hour":9}`, ""))
		assert.Equal(t, http.StatusCreated, rec.Code)
	}
	assert.Equal(t, 2, calls)
	assert.Zero(t, store.Len())
}

func TestIdempotencyReplaysStoredResponse(t *testing.T) {
	store := webhooktest.NewStore()
	calls := 0
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"data":{"id":"blog-1"}}`))
	}))

	var bodies []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{"title":"week"}`, "key-1"))
		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		bodies = append(bodies, rec.Body.String())
	}

	assert.Equal(t, 1, calls)
	assert.Equal(t, bodies[0], bodies[1])
}

func TestIdempotencyDetectsBodyChange(t *testing.T) {
	store := webhooktest.NewStore()
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{"title":"a"}`, "key-2"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{"title":"b"}`, "key-2"))
	require.Equal(t, http.StatusConflict, rec.Code)

	var envelope responses.ErrorEnvelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Equal(t, "IDEMPOTENCY_CONFLICT", envelope.Error.Code)
}

func TestIdempotencyDoesNotStoreServerErrors(t *testing.T) {
	store := webhooktest.NewStore()
	calls := 0
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	path := "/api/v1/commits/" + uuid.NewString() + "/regenerate"
	for _, want := range []int{http.StatusServiceUnavailable, http.StatusOK} {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, path, "/api/v1/commits/{commitID}/regenerate", `{"instruction":"shorter"}`, "key-3"))
		assert.Equal(t, want, rec.Code)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyScopesKeysPerUser(t *testing.T) {
	store := webhooktest.NewStore()
	calls := 0
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	for i := 0; i < 2; i++ {
		req := requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{}`, "shared")
		req = req.WithContext(WithUser(req.Context(), uuid.New(), "user_x", false))
		handler.ServeHTTP(httptest.NewRecorder(), req)
	}
	assert.Equal(t, 2, calls)
}

func TestIdempotencyRejectsConcurrentRetry(t *testing.T) {
	store := webhooktest.NewStore()
	var handler http.Handler
	var inner *httptest.ResponseRecorder
	handler = Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inner == nil {
			inner = httptest.NewRecorder()
			handler.ServeHTTP(inner, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{"title":"a"}`, "key-4"))
		}
		w.WriteHeader(http.StatusCreated)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, requestWithPattern(http.MethodPost, "/api/v1/blogs", "/api/v1/blogs", `{"title":"a"}`, "key-4"))

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, inner)
	assert.Equal(t, http.StatusConflict, inner.Code)
	assert.Contains(t, inner.Body.String(), "still in progress")
}

func TestIdempotencyMarksReplays(t *testing.T) {
	store := webhooktest.NewStore()
	handler := Idempotency(store, logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, requestWithPattern(http.MethodPost, "/api/v1/crons", "/api/v1/crons", `{"hour":9}`, "key-5"))
	assert.Empty(t, first.Header().Get("Idempotent-Replayed"))

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, requestWithPattern(http.MethodPost, "/api/v1/crons", "/api/v1/crons", `{"hour":9}`, "key-5"))
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
}

func TestRoutePatternDropsTrailingSlash(t *testing.T) {
	req := requestWithPattern(http.MethodPost, "/api/v1/crons/", "/api/v1/crons/", `{}`, "")
	assert.Equal(t, "/api/v1/crons", routePattern(req))
}

func requestWithPattern(method, path, pattern, body, key string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	rctx := chi.NewRouteContext()
	rctx.RoutePatterns = []string{pattern}
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}
