package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const githubPrefix = "sha256="

// ErrMissingSecret is returned when a verifier is built without a secret.
var ErrMissingSecret = errors.New("signature secret is required")

// Sign returns the GitHub-style signature header value for body.
func Sign(body, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return githubPrefix + hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether provided is the sha256=<hex> HMAC of body under secret.
// The hex digest must be lowercase, as GitHub sends it, so every bit of the
// header is significant. Malformed values return false; comparison is constant time.
func Verify(body []byte, provided string, secret []byte) bool {
	if len(secret) == 0 || !strings.HasPrefix(provided, githubPrefix) {
		return false
	}
	got := provided[len(githubPrefix):]
	if len(got) != hex.EncodedLen(sha256.Size) {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(got))
}

// GitHubVerifier checks X-Hub-Signature-256 headers against a fixed secret.
type GitHubVerifier struct {
	secret []byte
}

func NewGitHubVerifier(secret string) (*GitHubVerifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrMissingSecret
	}
	return &GitHubVerifier{secret: []byte(secret)}, nil
}

func (v *GitHubVerifier) Verify(body []byte, header string) bool {
	if v == nil {
		return false
	}
	return Verify(body, strings.TrimSpace(header), v.secret)
}
