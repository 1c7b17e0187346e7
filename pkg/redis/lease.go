package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// releaseScript deletes the lease only when the caller still owns it.
const releaseScript = `if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`

// Lease is a SET NX lock with an owner token. The TTL bounds how long a
// crashed holder can keep others out.
type Lease struct {
	client *Client
	key    string
	ttl    time.Duration
	token  string
}

// Lease returns an unacquired lease on LockKey(name).
func (c *Client) Lease(name string, ttl time.Duration) *Lease {
	return &Lease{client: c, key: c.LockKey(name), ttl: ttl}
}

func (l *Lease) Key() string { return l.key }

func (l *Lease) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire %s: %w", l.key, err)
	}
	if ok {
		l.token = token
	}
	return ok, nil
}

// Release is a no-op when the lease was never acquired or has since expired
// and been taken by someone else.
func (l *Lease) Release(ctx context.Context) error {
	if l.token == "" {
		return nil
	}
	if l.client.cmd == nil {
		return errNotConnected
	}
	token := l.token
	l.token = ""
	if err := l.client.cmd.Eval(ctx, releaseScript, []string{l.key}, token).Err(); err != nil && err != ErrNil {
		return fmt.Errorf("release %s: %w", l.key, err)
	}
	return nil
}
