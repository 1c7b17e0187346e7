package auth

import (
	"crypto/rsa"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/commitscribe-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
)

var jwtSigningMethod = jwt.SigningMethodRS256

// SessionVerifier validates Clerk-issued session JWTs against the instance's
// PEM encoded public key.
type SessionVerifier struct {
	key    *rsa.PublicKey
	issuer string
	leeway time.Duration
}

func NewSessionVerifier(cfg config.ClerkConfig) (*SessionVerifier, error) {
	if strings.TrimSpace(cfg.JWTPublicKey) == "" {
		return nil, fmt.Errorf("clerk jwt public key is required")
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(normalizePEM(cfg.JWTPublicKey)))
	if err != nil {
		return nil, fmt.Errorf("parsing clerk public key: %w", err)
	}
	return &SessionVerifier{key: key, issuer: strings.TrimSpace(cfg.Issuer), leeway: 5 * time.Second}, nil
}

// Verify parses the token string and returns typed claims.
func (v *SessionVerifier) Verify(tokenString string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwtSigningMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method != jwtSigningMethod {
				return nil, fmt.Errorf("unexpected signing method %s", token.Header["alg"])
			}
			return v.key, nil
		},
		opts...,
	)
	if err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("session token missing subject")
	}
	return claims, nil
}

// ParseAppPrivateKey decodes the GitHub App's PEM encoded RSA key.
func ParseAppPrivateKey(pemText string) (*rsa.PrivateKey, error) {
	if strings.TrimSpace(pemText) == "" {
		return nil, fmt.Errorf("github app private key is required")
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(pemText)))
	if err != nil {
		return nil, fmt.Errorf("parsing github app private key: %w", err)
	}
	return key, nil
}

// normalizePEM restores newlines in keys passed through single-line env vars.
func normalizePEM(value string) string {
	return strings.ReplaceAll(strings.TrimSpace(value), `\n`, "\n")
}
