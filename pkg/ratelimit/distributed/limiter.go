package distributed

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter admits events against a limit shared across instances.
type Limiter interface {
	// Allow reports whether one event may happen now.
	Allow(ctx context.Context) bool

	// AllowN reports whether n events may happen now.
	AllowN(ctx context.Context, n int) bool

	// Stats returns the shared counters for the current window.
	Stats(ctx context.Context) (*Stats, error)

	// Reset clears all state stored under the limiter key.
	Reset(ctx context.Context) error

	// Close deregisters this instance.
	Close() error
}

// Stats holds fixed-window limiter statistics.
type Stats struct {
	Limit           int64         `json:"limit"`
	Window          time.Duration `json:"window"`
	WindowStart     time.Time     `json:"window_start"`
	Current         int64         `json:"current"`
	Remaining       int64         `json:"remaining"`
	TotalRequests   int64         `json:"total_requests"`
	AllowedRequests int64         `json:"allowed_requests"`
	DeniedRequests  int64         `json:"denied_requests"`
	ActiveInstances []string      `json:"active_instances"`
}

// Config holds configuration for the fixed-window limiter.
type Config struct {
	// Redis client for coordination
	Redis redis.UniversalClient

	// Key is the Redis key prefix for this limiter
	Key string

	// Limit is the number of events admitted per window
	Limit int64

	// Window is the length of one counting window (defaults to 1s)
	Window time.Duration

	// InstanceID uniquely identifies this application instance
	InstanceID string

	// FailOpen admits events when Redis cannot be reached
	FailOpen bool

	// RedisTimeout is the timeout for Redis operations
	RedisTimeout time.Duration

	// KeyTTL is how long the config, stats and instance keys live (defaults to 1 hour)
	KeyTTL time.Duration
}

// DefaultConfig returns a default limiter configuration.
func DefaultConfig() Config {
	return Config{
		Window:       time.Second,
		InstanceID:   generateInstanceID(),
		FailOpen:     true,
		RedisTimeout: 500 * time.Millisecond,
		KeyTTL:       time.Hour,
	}
}

func validateConfig(config Config) error {
	if config.Redis == nil {
		return &ConfigError{"redis client is required"}
	}
	if config.Key == "" {
		return &ConfigError{"key is required"}
	}
	if config.Limit <= 0 {
		return &ConfigError{"limit must be positive"}
	}
	if config.Window < 0 {
		return &ConfigError{"window cannot be negative"}
	}
	return nil
}

func applyConfigDefaults(config Config) Config {
	if config.Window == 0 {
		config.Window = time.Second
	}
	if config.InstanceID == "" {
		config.InstanceID = generateInstanceID()
	}
	if config.RedisTimeout == 0 {
		config.RedisTimeout = 500 * time.Millisecond
	}
	if config.KeyTTL == 0 {
		config.KeyTTL = time.Hour
	}
	return config
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return "distributed rate limiter config error: " + e.Message
}

// RedisError represents a Redis operation error.
type RedisError struct {
	Operation string
	Err       error
}

func (e *RedisError) Error() string {
	return "distributed rate limiter redis error in " + e.Operation + ": " + e.Err.Error()
}

func (e *RedisError) Unwrap() error {
	return e.Err
}
