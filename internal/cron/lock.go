package cron

import "context"

// Lock keeps two cron-worker replicas from sweeping at the same time.
// pkg/redis.Lease is the production implementation.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}
