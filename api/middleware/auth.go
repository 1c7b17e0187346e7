package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/commitscribe-backend/api/responses"
	"github.com/angelmondragon/commitscribe-backend/internal/users"
	pkgauth "github.com/angelmondragon/commitscribe-backend/pkg/auth"
	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/angelmondragon/commitscribe-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/commitscribe-backend/pkg/errors"
	"github.com/angelmondragon/commitscribe-backend/pkg/logger"
)

type SessionVerifier interface {
	Verify(token string) (*pkgauth.SessionClaims, error)
}

type UserProvisioner interface {
	EnsureFromClerk(ctx context.Context, input users.ClerkUser) (*models.User, bool, error)
}

// Auth validates the Clerk session bearer token and seeds the request context
// with the local user. A caller whose user.created webhook has not arrived yet
// is provisioned from the token claims.
func Auth(verifier SessionVerifier, accounts UserProvisioner, cfg config.AuthConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			token := raw
			if strings.HasPrefix(strings.ToLower(token), "bearer ") {
				token = strings.TrimSpace(token[7:])
			}
			if token == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing credentials"))
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid token"))
				return
			}
			clerkID := claims.ClerkUserID()
			if clerkID == "" {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "token missing subject"))
				return
			}

			input := users.ClerkUser{ClerkID: clerkID, Email: claims.Email}
			if name := strings.TrimSpace(claims.Username); name != "" {
				input.Username = &name
			}
			user, _, err := accounts.EnsureFromClerk(r.Context(), input)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			admin := cfg.IsAdmin(clerkID)
			ctx := WithUser(r.Context(), user.ID, clerkID, admin)
			if logg != nil {
				ctx = logg.WithUserID(ctx, user.ID.String())
				if admin {
					ctx = logg.WithField(ctx, "admin", true)
				}
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers that are not configured operators.
func RequireAdmin(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsAdminFromContext(r.Context()) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "admin access required"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
