package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/commitscribe-backend/internal/users"
	pkgauth "github.com/angelmondragon/commitscribe-backend/pkg/auth"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
)

type stubVerifier struct {
	subject string
	err     error
}

func (s stubVerifier) Verify(token string) (*pkgauth.SessionClaims, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &pkgauth.SessionClaims{Email: "dev@example.com", RegisteredClaims: jwt.RegisteredClaims{Subject: s.subject}}, nil
}

type stubProvisioner struct {
	id    uuid.UUID
	calls []users.ClerkUser
}

func (s *stubProvisioner) EnsureFromClerk(_ context.Context, input users.ClerkUser) (*models.User, bool, error) {
	s.calls = append(s.calls, input)
	return &models.User{ID: s.id, ClerkUserID: input.ClerkID}, false, nil
}

func serve(t *testing.T, h http.Handler, authHeader string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAuthRejectsMissingAndInvalidTokens(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

	h := Auth(stubVerifier{subject: "user_1"}, &stubProvisioner{}, config.AuthConfig{}, nil)(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(t, h, "").Code)
	assert.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer ").Code)

	h = Auth(stubVerifier{err: errors.New("token is expired")}, &stubProvisioner{}, config.AuthConfig{}, nil)(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer abc").Code)

	h = Auth(stubVerifier{subject: ""}, &stubProvisioner{}, config.AuthConfig{}, nil)(ok)
	assert.Equal(t, http.StatusUnauthorized, serve(t, h, "Bearer abc").Code)
}

func TestAuthSeedsContext(t *testing.T) {
	accounts := &stubProvisioner{id: uuid.New()}
	var gotUser uuid.UUID
	var gotClerk string
	var gotAdmin bool
	h := Auth(stubVerifier{subject: "user_1"}, accounts, config.AuthConfig{AdminClerkIDs: []string{"user_1"}}, nil)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotUser = UserIDFromContext(r.Context())
			gotClerk = ClerkIDFromContext(r.Context())
			gotAdmin = IsAdminFromContext(r.Context())
		}))

	rec := serve(t, h, "Bearer token")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, accounts.id, gotUser)
	assert.Equal(t, "user_1", gotClerk)
	assert.True(t, gotAdmin)
	require.Len(t, accounts.calls, 1)
	assert.Equal(t, "dev@example.com", accounts.calls[0].Email)
}

func TestRequireAdmin(t *testing.T) {
	h := RequireAdmin(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), uuid.New(), "user_2", false)))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req.WithContext(WithUser(req.Context(), uuid.New(), "user_1", true)))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
