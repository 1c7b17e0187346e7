package scheduler

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const defaultWakeChannel = "cs:scheduler:wake"

type wakePublisher interface {
	Publish(ctx context.Context, channel string, message any) error
	Subscribe(ctx context.Context, channels ...string) (*redis.PubSub, error)
}

// RedisWaker fans wake-ups out to every dispatcher over Redis pub/sub.
type RedisWaker struct {
	client  wakePublisher
	channel string
}

func NewRedisWaker(client wakePublisher, channel string) (*RedisWaker, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		channel = defaultWakeChannel
	}
	return &RedisWaker{client: client, channel: channel}, nil
}

func (w *RedisWaker) Notify(ctx context.Context) error {
	return w.client.Publish(ctx, w.channel, "wake")
}

// Wakeups subscribes to the wake channel. The returned channel is closed when
// ctx ends or the subscription drops.
func (w *RedisWaker) Wakeups(ctx context.Context) (<-chan struct{}, error) {
	sub, err := w.client.Subscribe(ctx, w.channel)
	if err != nil {
		return nil, err
	}
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer sub.Close()
		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}
