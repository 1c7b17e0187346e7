package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/commitscribe-backend/api/middleware"
	"github.com/angelmondragon/commitscribe-backend/api/responses"
)

type PingScope string

const (
	PingPublic  PingScope = "public"
	PingPrivate PingScope = "private"
	PingAdmin   PingScope = "admin"
)

type pingResponse struct {
	Scope       PingScope `json:"scope"`
	Status      string    `json:"status"`
	ServerTime  time.Time `json:"server_time"`
	UserID      string    `json:"user_id,omitempty"`
	ClerkUserID string    `json:"clerk_user_id,omitempty"`
	Admin       bool      `json:"admin,omitempty"`
}

// Ping answers a reachability check for one route group. Behind auth it
// echoes the identity the session token resolved to.
func Ping(scope PingScope, now func() time.Time) http.HandlerFunc {
	if now == nil {
		now = time.Now
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := pingResponse{Scope: scope, Status: "ok", ServerTime: now().UTC()}
		if scope != PingPublic {
			ctx := r.Context()
			if id := middleware.UserIDFromContext(ctx); id != uuid.Nil {
				resp.UserID = id.String()
			}
			resp.ClerkUserID = middleware.ClerkIDFromContext(ctx)
			resp.Admin = middleware.IsAdminFromContext(ctx)
		}
		responses.WriteSuccess(w, resp)
	}
}
