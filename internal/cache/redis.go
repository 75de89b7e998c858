// Package cache provides the Redis connection used by route handlers.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Name is the dependency name reported in logs and readiness checks.
const Name = "redis"

// ErrNotConnected is returned when the client is used before Connect.
var ErrNotConnected = errors.New("redis is not connected")

// Config holds Redis connection settings.
type Config struct {
	// URL is a redis:// or rediss:// connection URL.
	URL string

	// PoolSize overrides the client pool size when positive.
	PoolSize int

	// DialTimeout bounds a single dial. Zero keeps the client default.
	DialTimeout time.Duration
}

// Redis is the cache dependency.
type Redis struct {
	cfg    Config
	logger observability.Logger

	mu     sync.RWMutex
	client *redis.Client
}

// Option is a functional option for configuring the cache.
type Option func(*Redis)

// WithLogger sets the logger for the cache.
func WithLogger(logger observability.Logger) Option {
	return func(r *Redis) {
		r.logger = logger
	}
}

// New creates an unconnected Redis dependency.
func New(cfg Config, opts ...Option) *Redis {
	r := &Redis{
		cfg:    cfg,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the dependency name.
func (r *Redis) Name() string {
	return Name
}

// Connect opens the client and verifies it with PING. The client is
// closed again if the ping fails.
func (r *Redis) Connect(ctx context.Context) error {
	if r.cfg.URL == "" {
		return errors.New("redis URL is required")
	}

	opts, err := redis.ParseURL(r.cfg.URL)
	if err != nil {
		return fmt.Errorf("invalid redis URL: %w", err)
	}
	if r.cfg.PoolSize > 0 {
		opts.PoolSize = r.cfg.PoolSize
	}
	if r.cfg.DialTimeout > 0 {
		opts.DialTimeout = r.cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("redis ping failed: %w", err)
	}

	r.mu.Lock()
	r.client = client
	r.mu.Unlock()

	r.logger.Info("redis connected", observability.String("addr", opts.Addr), observability.Int("db", opts.DB))
	return nil
}

// Ping checks the connection.
func (r *Redis) Ping(ctx context.Context) error {
	client := r.Client()
	if client == nil {
		return ErrNotConnected
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Client returns the connected client, or nil before Connect.
func (r *Redis) Client() *redis.Client {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.client
}

// Close closes the client. Closing an unconnected cache is a no-op.
func (r *Redis) Close(_ context.Context) error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	if err := client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	r.logger.Info("redis connection closed")
	return nil
}
