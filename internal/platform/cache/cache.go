// Package cache opens the optional Redis client used for submission rate
// limiting.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the client. Zero timeouts fall back to short
// defaults, since a slow limiter only delays submissions.
type Options struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Cache holds the Redis client shared by the limiters.
type Cache struct {
	Client *redis.Client
}

// ParseURL turns a redis:// or rediss:// URL into client options.
func ParseURL(url string) (*redis.Options, error) {
	if url == "" {
		return nil, errors.New("cache URL is empty")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse cache URL: %w", err)
	}
	return opts, nil
}

// Open creates the client and pings the server once.
func Open(ctx context.Context, o Options) (*Cache, error) {
	opts, err := ParseURL(o.URL)
	if err != nil {
		return nil, err
	}
	opts.DialTimeout = orDefault(o.DialTimeout, 5*time.Second)
	opts.ReadTimeout = orDefault(o.ReadTimeout, time.Second)
	opts.WriteTimeout = orDefault(o.WriteTimeout, time.Second)

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping cache %s: %w", opts.Addr, err)
	}

	slog.Info("cache connected", "addr", opts.Addr, "db", opts.DB)
	return &Cache{Client: client}, nil
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

// Name identifies the dependency in readiness reports.
func (c *Cache) Name() string {
	return "cache"
}

func (c *Cache) Close() error {
	return c.Client.Close()
}

// HealthCheck pings the server.
func (c *Cache) HealthCheck(ctx context.Context) error {
	if err := c.Client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping cache: %w", err)
	}
	return nil
}
