package signature

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	svix "github.com/svix/svix-webhooks/go"
)

// ErrSvixSignature wraps every rejected Clerk delivery.
var ErrSvixSignature = errors.New("svix signature rejected")

// SvixVerifier validates Clerk deliveries. Svix rejects timestamps more than
// five minutes away from now and accepts any matching v1 signature.
type SvixVerifier struct {
	hook *svix.Webhook
}

// NewSvixVerifier takes the whsec_ signing secret from the Clerk dashboard.
func NewSvixVerifier(secret string) (*SvixVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	hook, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, fmt.Errorf("decode svix secret: %w", err)
	}
	return &SvixVerifier{hook: hook}, nil
}

// Verify checks the svix-id, svix-timestamp and svix-signature headers.
func (v *SvixVerifier) Verify(body []byte, headers http.Header) error {
	if err := v.hook.Verify(body, headers); err != nil {
		return fmt.Errorf("%w: %v", ErrSvixSignature, err)
	}
	return nil
}

// Sign builds a svix-signature value for replaying a delivery locally.
func (v *SvixVerifier) Sign(id string, timestamp time.Time, body []byte) (string, error) {
	return v.hook.Sign(id, timestamp, body)
}
