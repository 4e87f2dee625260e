package distributed

import (
	"context"
	"time"

	boff "github.com/Andrej220/go-utils/backoff"
	"github.com/redis/go-redis/v9"
)

var (
	dialInitialBackoff = 100 * time.Millisecond
	dialMaxBackoff     = 2 * time.Second
)

// Dial opens a Redis client and pings it up to attempts times, backing off
// between failures. The client is closed if no ping succeeds.
func Dial(ctx context.Context, opts *redis.Options, attempts int) (*redis.Client, error) {
	if opts == nil {
		return nil, &ConfigError{"redis options are required"}
	}
	if attempts <= 0 {
		attempts = 1
	}

	client := redis.NewClient(opts)
	bo := boff.New(dialInitialBackoff, dialMaxBackoff, time.Now().UnixNano())

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(bo.Next())
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			_ = client.Close()
			return nil, &RedisError{"dial", ctx.Err()}
		}
	}

	_ = client.Close()
	return nil, &RedisError{"dial", err}
}
