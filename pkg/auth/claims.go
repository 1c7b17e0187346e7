package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the subset of a Clerk session token the API relies on.
// Subject carries the Clerk user id.
type SessionClaims struct {
	SessionID string `json:"sid,omitempty"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// ClerkUserID returns the external identity the session belongs to.
func (c *SessionClaims) ClerkUserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}
