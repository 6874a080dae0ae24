// Package config loads application configuration from environment variables.
// All variables use the LEDGER_ prefix.
package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Prefix is prepended to every variable name.
const Prefix = "LEDGER_"

// Config holds all application configuration.
type Config struct {
	Server      ServerConfig    `envPrefix:"SERVER_"`
	Database    DatabaseConfig  `envPrefix:"DATABASE_"`
	Cache       CacheConfig     `envPrefix:"CACHE_"`
	Sandbox     SandboxConfig   `envPrefix:"SANDBOX_"`
	Session     SessionConfig   `envPrefix:"SESSION_"`
	RateLimit   RateLimitConfig `envPrefix:"RATELIMIT_"`
	Log         LogConfig       `envPrefix:"LOG_"`
	ContentPath string          `env:"CONTENT_PATH"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port              int           `env:"PORT"                envDefault:"8080"`
	Host              string        `env:"HOST"                envDefault:"0.0.0.0"`
	ReadHeaderTimeout time.Duration `env:"READ_HEADER_TIMEOUT" envDefault:"10s"`
	ShutdownTimeout   time.Duration `env:"SHUTDOWN_TIMEOUT"    envDefault:"30s"`
	AllowedOrigins    []string      `env:"ALLOWED_ORIGINS"     envSeparator:","`
}

// DatabaseConfig holds PostgreSQL settings. An empty URL disables the
// grading audit log.
type DatabaseConfig struct {
	URL      string `env:"URL"`
	MaxConns int    `env:"MAX_CONNS" envDefault:"10"`
	MinConns int    `env:"MIN_CONNS" envDefault:"2"`
}

// CacheConfig holds Redis settings. An empty URL keeps rate limiting in
// process.
type CacheConfig struct {
	URL string `env:"URL"`
}

// SandboxConfig bounds script execution.
type SandboxConfig struct {
	Timeout        time.Duration `env:"TIMEOUT"          envDefault:"5s"`
	MaxSteps       uint64        `env:"MAX_STEPS"        envDefault:"10000000"`
	MaxOutputBytes int           `env:"MAX_OUTPUT_BYTES" envDefault:"65536"`
	MaxConcurrent  int           `env:"MAX_CONCURRENT"   envDefault:"4"`
}

// SessionConfig controls idle session eviction.
type SessionConfig struct {
	TTL           time.Duration `env:"TTL"            envDefault:"2h"`
	SweepInterval time.Duration `env:"SWEEP_INTERVAL" envDefault:"5m"`
}

// RateLimitConfig throttles submissions per session. Zero Submissions
// disables the limit.
type RateLimitConfig struct {
	Submissions int           `env:"SUBMISSIONS" envDefault:"30"`
	Window      time.Duration `env:"WINDOW"      envDefault:"1m"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `env:"LEVEL"   envDefault:"info"`
	Format  string `env:"FORMAT"  envDefault:"json"`
	Journal bool   `env:"JOURNAL" envDefault:"false"`
}

// Load reads configuration from environment variables with the LEDGER_
// prefix.
func Load() (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: Prefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Validate checks that values are usable.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("LEDGER_SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LEDGER_LOG_LEVEL must be debug, info, warn or error, got %q", c.Log.Level)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("LEDGER_LOG_FORMAT must be 'json' or 'text', got %q", c.Log.Format)
	}

	if c.Sandbox.Timeout <= 0 {
		return fmt.Errorf("LEDGER_SANDBOX_TIMEOUT must be positive")
	}
	if c.Sandbox.MaxSteps == 0 {
		return fmt.Errorf("LEDGER_SANDBOX_MAX_STEPS must be positive")
	}
	if c.Sandbox.MaxOutputBytes <= 0 {
		return fmt.Errorf("LEDGER_SANDBOX_MAX_OUTPUT_BYTES must be positive")
	}
	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("LEDGER_SANDBOX_MAX_CONCURRENT must be positive")
	}

	if c.Session.TTL <= 0 || c.Session.SweepInterval <= 0 {
		return fmt.Errorf("LEDGER_SESSION_TTL and LEDGER_SESSION_SWEEP_INTERVAL must be positive")
	}

	if c.RateLimit.Submissions < 0 {
		return fmt.Errorf("LEDGER_RATELIMIT_SUBMISSIONS must not be negative")
	}
	if c.RateLimit.Submissions > 0 && c.RateLimit.Window <= 0 {
		return fmt.Errorf("LEDGER_RATELIMIT_WINDOW must be positive when rate limiting is enabled")
	}

	if c.Database.MinConns > c.Database.MaxConns {
		return fmt.Errorf("LEDGER_DATABASE_MIN_CONNS (%d) exceeds LEDGER_DATABASE_MAX_CONNS (%d)", c.Database.MinConns, c.Database.MaxConns)
	}

	return nil
}

// Addr returns the host:port the server listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// HasDatabase reports whether the grading audit log is configured.
func (c *Config) HasDatabase() bool {
	return c.Database.URL != ""
}

// HasCache reports whether Redis is configured.
func (c *Config) HasCache() bool {
	return c.Cache.URL != ""
}
