package distributed

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow implements distributed fixed window rate limiting using Redis.
type fixedWindow struct {
	config Config
	keys   limiterKeys
	now    func() time.Time

	checkAndIncrementScript *redis.Script
}

// NewFixedWindow creates a Redis-backed fixed window limiter and registers
// this instance under the limiter key.
func NewFixedWindow(config Config) (Limiter, error) {
	if err := validateConfig(config); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	fw := &fixedWindow{
		config:                  config,
		keys:                    redisKeys(config.Key),
		now:                     time.Now,
		checkAndIncrementScript: redis.NewScript(luaFixedWindowCheckAndIncrement),
	}

	if err := fw.initialize(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to initialize fixed window: %w", err)
	}

	return fw, nil
}

func (fw *fixedWindow) initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fw.config.RedisTimeout)
	defer cancel()

	pipe := fw.config.Redis.Pipeline()

	pipe.HSet(ctx, fw.keys.config, map[string]interface{}{
		"limit":     fw.config.Limit,
		"window_ms": fw.config.Window.Milliseconds(),
	})
	pipe.Expire(ctx, fw.keys.config, fw.config.KeyTTL)

	// HINCRBY by zero creates missing fields without clobbering other instances' counts.
	pipe.HIncrBy(ctx, fw.keys.stats, "total_requests", 0)
	pipe.HIncrBy(ctx, fw.keys.stats, "allowed_requests", 0)
	pipe.HIncrBy(ctx, fw.keys.stats, "denied_requests", 0)
	pipe.Expire(ctx, fw.keys.stats, fw.config.KeyTTL)

	pipe.SAdd(ctx, fw.keys.instances, fw.config.InstanceID)
	pipe.Expire(ctx, fw.keys.instances, fw.config.KeyTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return &RedisError{"initialize", err}
	}
	return nil
}

func (fw *fixedWindow) windowStart(t time.Time) time.Time {
	return t.Truncate(fw.config.Window)
}

func (fw *fixedWindow) windowKey(t time.Time) string {
	return fmt.Sprintf("%s:%d", fw.keys.window, t.UnixNano()/fw.config.Window.Nanoseconds())
}

// Allow reports whether one event may happen now.
func (fw *fixedWindow) Allow(ctx context.Context) bool {
	return fw.AllowN(ctx, 1)
}

// AllowN reports whether n events may happen now. Denied requests do not
// consume capacity.
func (fw *fixedWindow) AllowN(ctx context.Context, n int) bool {
	if n <= 0 {
		return true
	}

	ctx, cancel := context.WithTimeout(ctx, fw.config.RedisTimeout)
	defer cancel()

	allowed, err := fw.checkAndIncrementScript.Run(ctx, fw.config.Redis,
		[]string{fw.windowKey(fw.now()), fw.keys.stats},
		n,
		fw.config.Limit,
		fw.config.Window.Milliseconds()+1000,
	).Int64()
	if err != nil {
		return fw.config.FailOpen
	}
	return allowed == 1
}

// Stats returns current limiter statistics.
func (fw *fixedWindow) Stats(ctx context.Context) (*Stats, error) {
	ctx, cancel := context.WithTimeout(ctx, fw.config.RedisTimeout)
	defer cancel()

	now := fw.now()
	pipe := fw.config.Redis.Pipeline()
	instancesCmd := pipe.SMembers(ctx, fw.keys.instances)
	statsCmd := pipe.HGetAll(ctx, fw.keys.stats)
	currentCmd := pipe.Get(ctx, fw.windowKey(now))

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, &RedisError{"stats", err}
	}

	statsMap := statsCmd.Val()
	total, _ := strconv.ParseInt(statsMap["total_requests"], 10, 64)
	allowed, _ := strconv.ParseInt(statsMap["allowed_requests"], 10, 64)
	denied, _ := strconv.ParseInt(statsMap["denied_requests"], 10, 64)
	current, _ := strconv.ParseInt(currentCmd.Val(), 10, 64)

	return &Stats{
		Limit:           fw.config.Limit,
		Window:          fw.config.Window,
		WindowStart:     fw.windowStart(now),
		Current:         current,
		Remaining:       max(0, fw.config.Limit-current),
		TotalRequests:   total,
		AllowedRequests: allowed,
		DeniedRequests:  denied,
		ActiveInstances: instancesCmd.Val(),
	}, nil
}

// Reset clears every window counter and the stats, then re-registers this
// instance.
func (fw *fixedWindow) Reset(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, fw.config.RedisTimeout)
	defer cancel()

	keys := []string{fw.keys.config, fw.keys.stats, fw.keys.instances}
	iter := fw.config.Redis.Scan(ctx, 0, fw.keys.window+":*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return &RedisError{"reset", err}
	}

	if err := fw.config.Redis.Del(ctx, keys...).Err(); err != nil {
		return &RedisError{"reset", err}
	}
	return fw.initialize(ctx)
}

// Close deregisters this instance. The Redis client stays open; it belongs
// to the caller.
func (fw *fixedWindow) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), fw.config.RedisTimeout)
	defer cancel()

	if err := fw.config.Redis.SRem(ctx, fw.keys.instances, fw.config.InstanceID).Err(); err != nil {
		return &RedisError{"close", err}
	}
	return nil
}

const luaFixedWindowCheckAndIncrement = `
-- KEYS[1]: current window key
-- KEYS[2]: stats key
-- ARGV[1]: requests count
-- ARGV[2]: max requests per window
-- ARGV[3]: window key TTL (milliseconds)

local window_key = KEYS[1]
local stats_key = KEYS[2]

local requests = tonumber(ARGV[1])
local max_requests = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current_count = tonumber(redis.call('GET', window_key) or "0")

redis.call('HINCRBY', stats_key, 'total_requests', requests)

if current_count + requests <= max_requests then
    local new_count = redis.call('INCRBY', window_key, requests)
    if new_count == requests then
        redis.call('PEXPIRE', window_key, ttl)
    end
    redis.call('HINCRBY', stats_key, 'allowed_requests', requests)
    return 1
end

redis.call('HINCRBY', stats_key, 'denied_requests', requests)
return 0
`
