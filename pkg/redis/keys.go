package redis

import "strings"

// Keyspace prefixes every key written by the service.
type Keyspace string

const DefaultKeyspace Keyspace = "cs"

const (
	kindIdempotency  = "idempotency"
	kindRateLimit    = "rate_limit"
	kindInstallState = "install_state"
	kindLock         = "lock"
)

// Key joins the keyspace, kind and parts with ':'. Blank parts are dropped.
func (k Keyspace) Key(kind string, parts ...string) string {
	var b strings.Builder
	b.WriteString(string(k))
	for _, part := range append([]string{kind}, parts...) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}

func (c *Client) keyspace() Keyspace {
	if c.keys == "" {
		return DefaultKeyspace
	}
	return c.keys
}

func (c *Client) IdempotencyKey(scope, id string) string {
	return c.keyspace().Key(kindIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return c.keyspace().Key(kindRateLimit, scope)
}

func (c *Client) InstallStateKey(state string) string {
	return c.keyspace().Key(kindInstallState, state)
}

func (c *Client) LockKey(name string) string {
	return c.keyspace().Key(kindLock, name)
}
