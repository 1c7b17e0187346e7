package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	ctxUserID  contextKey = "user_id"
	ctxClerkID contextKey = "clerk_user_id"
	ctxAdmin   contextKey = "is_admin"
)

// UserIDFromContext returns the local user id of the authenticated caller, or
// uuid.Nil outside authenticated routes.
func UserIDFromContext(ctx context.Context) uuid.UUID {
	if ctx == nil {
		return uuid.Nil
	}
	if v, ok := ctx.Value(ctxUserID).(uuid.UUID); ok {
		return v
	}
	return uuid.Nil
}

func ClerkIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxClerkID).(string); ok {
		return v
	}
	return ""
}

func IsAdminFromContext(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	v, _ := ctx.Value(ctxAdmin).(bool)
	return v
}

// WithUser injects the authenticated identity. Tests use it to bypass token
// verification.
func WithUser(ctx context.Context, userID uuid.UUID, clerkID string, admin bool) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	ctx = context.WithValue(ctx, ctxClerkID, clerkID)
	return context.WithValue(ctx, ctxAdmin, admin)
}
