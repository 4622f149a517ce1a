package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Counter keeps expiring counters in Redis. It backs the distributed rate
// limiter; it never stores transcription data.
type Counter struct {
	client *redis.Client
	prefix string
}

func NewCounter(client *redis.Client, prefix string) *Counter {
	return &Counter{client: client, prefix: prefix}
}

// IncrWindow increments key and starts its expiry on first use, returning the
// count within the current window.
func (c *Counter) IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error) {
	fullKey := c.prefix + key

	n, err := c.client.Incr(ctx, fullKey).Result()
	if err != nil {
		return 0, fmt.Errorf("cache incr %s: %w", fullKey, err)
	}
	if n == 1 {
		if err := c.client.Expire(ctx, fullKey, window).Err(); err != nil {
			return n, fmt.Errorf("cache expire %s: %w", fullKey, err)
		}
	}
	return n, nil
}

func (c *Counter) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
