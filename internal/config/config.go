// Package config loads the ruginx configuration from a YAML or JSON file,
// applies RUGINX_* environment overrides and validates the result.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/vnykmshr/ruginx/internal/logging"
	cerrors "github.com/vnykmshr/ruginx/pkg/common/errors"
	"github.com/vnykmshr/ruginx/pkg/common/validation"
)

const module = "config"

// Config is the complete ruginx configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server"`
	Pool      PoolConfig      `yaml:"pool" json:"pool"`
	Admin     AdminConfig     `yaml:"admin" json:"admin"`
	Log       logging.Config  `yaml:"log" json:"log"`
	RateLimit RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
	Reporter  ReporterConfig  `yaml:"reporter" json:"reporter"`
}

// ServerConfig configures the TCP listener.
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	Root string `yaml:"root" json:"root"`

	// MaxConnections stops the accept loop after this many connections; 0 means unbounded
	MaxConnections int `yaml:"max_connections" json:"max_connections"`

	// MaxOpenConns bounds simultaneously open connections; 0 means unbounded
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	ReadTimeout string `yaml:"read_timeout" json:"read_timeout"`
}

// ReadDeadline returns the parsed read timeout. Validate has already
// rejected unparsable values.
func (s ServerConfig) ReadDeadline() time.Duration {
	d, err := time.ParseDuration(s.ReadTimeout)
	if err != nil {
		return 0
	}
	return d
}

// PoolConfig sizes the thread pool.
type PoolConfig struct {
	Workers int `yaml:"workers" json:"workers"`
}

// AdminConfig configures the admin HTTP endpoint.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// RateLimitConfig configures the Redis connection admission limiter.
type RateLimitConfig struct {
	Enabled         bool   `yaml:"enabled" json:"enabled"`
	RedisAddr       string `yaml:"redis_addr" json:"redis_addr"`
	Key             string `yaml:"key" json:"key"`
	Rate            int64  `yaml:"rate" json:"rate"`
	Window          string `yaml:"window" json:"window"`
	ConnectAttempts int    `yaml:"connect_attempts" json:"connect_attempts"`
}

// WindowDuration returns the parsed limiter window.
func (r RateLimitConfig) WindowDuration() time.Duration {
	d, err := time.ParseDuration(r.Window)
	if err != nil {
		return time.Second
	}
	return d
}

// ReporterConfig configures the periodic pool statistics report.
type ReporterConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	Schedule string `yaml:"schedule" json:"schedule"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:        "127.0.0.1:7878",
			Root:        "./public",
			ReadTimeout: "5s",
		},
		Pool: PoolConfig{Workers: 4},
		Admin: AdminConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
		Log: logging.Config{Level: "info", Format: "console"},
		RateLimit: RateLimitConfig{
			RedisAddr:       "localhost:6379",
			Key:             "ruginx:conns",
			Rate:            100,
			Window:          "1s",
			ConnectAttempts: 3,
		},
		Reporter: ReporterConfig{
			Enabled:  true,
			Schedule: "@every 30s",
		},
	}
}

// LoadFile reads path over the defaults. Fields absent from the file keep
// their default values.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg := Default()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse YAML")
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse JSON")
		}
	default:
		return nil, errors.Errorf("unsupported config format: %s", ext)
	}

	return cfg, nil
}

// Load returns the defaults (or path, when set) with environment overrides
// applied, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = LoadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from RUGINX_ADDR, RUGINX_WORKERS, RUGINX_ROOT,
// RUGINX_LOG_LEVEL and RUGINX_REDIS_ADDR.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv("RUGINX_ADDR"); ok {
		c.Server.Addr = v
	}
	if v, ok := os.LookupEnv("RUGINX_ROOT"); ok {
		c.Server.Root = v
	}
	if v, ok := os.LookupEnv("RUGINX_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.Wrapf(err, "invalid RUGINX_WORKERS %q", v)
		}
		c.Pool.Workers = n
	}
	if v, ok := os.LookupEnv("RUGINX_LOG_LEVEL"); ok {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv("RUGINX_REDIS_ADDR"); ok {
		c.RateLimit.RedisAddr = v
		c.RateLimit.Enabled = true
	}
	return nil
}

// Validate reports the first invalid field as a *errors.ValidationError.
func (c *Config) Validate() error {
	if err := validation.ValidateListenAddr(module, "server.addr", c.Server.Addr); err != nil {
		return err
	}
	if err := validation.ValidateNotEmpty(module, "server.root", c.Server.Root); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "server.max_connections", c.Server.MaxConnections); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative(module, "server.max_open_conns", c.Server.MaxOpenConns); err != nil {
		return err
	}
	if err := validateDuration("server.read_timeout", c.Server.ReadTimeout); err != nil {
		return err
	}
	if err := validation.ValidatePositive(module, "pool.workers", c.Pool.Workers); err != nil {
		return err
	}

	if c.Admin.Enabled {
		if err := validation.ValidateListenAddr(module, "admin.addr", c.Admin.Addr); err != nil {
			return err
		}
	}

	if c.RateLimit.Enabled {
		if err := validation.ValidateNotEmpty(module, "ratelimit.redis_addr", c.RateLimit.RedisAddr); err != nil {
			return err
		}
		if err := validation.ValidateNotEmpty(module, "ratelimit.key", c.RateLimit.Key); err != nil {
			return err
		}
		if c.RateLimit.Rate <= 0 {
			return cerrors.NewValidationError(module, "ratelimit.rate", c.RateLimit.Rate, "must be positive")
		}
		if err := validateDuration("ratelimit.window", c.RateLimit.Window); err != nil {
			return err
		}
		if err := validation.ValidatePositive(module, "ratelimit.connect_attempts", c.RateLimit.ConnectAttempts); err != nil {
			return err
		}
	}

	if c.Reporter.Enabled {
		if err := validation.ValidateNotEmpty(module, "reporter.schedule", c.Reporter.Schedule); err != nil {
			return err
		}
	}
	return nil
}

func validateDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return cerrors.NewValidationError(module, field, value, "not a duration").
			WithHint("use Go duration syntax such as 500ms or 5s")
	}
	if d < 0 {
		return cerrors.NewValidationError(module, field, value, "cannot be negative")
	}
	return nil
}
