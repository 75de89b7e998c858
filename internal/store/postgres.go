// Package store provides the PostgreSQL connection used by route handlers.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // postgres driver

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Name is the dependency name reported in logs and readiness checks.
const Name = "postgres"

// DriverName is the database/sql driver used to open connections.
const DriverName = "postgres"

// ErrNotConnected is returned when the database is used before Connect.
var ErrNotConnected = errors.New("database is not connected")

// Config holds database connection settings.
type Config struct {
	// URL is the connection string, either a postgres:// URL or a
	// key=value DSN.
	URL string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenFunc opens a database handle without connecting.
type OpenFunc func(driverName, dsn string) (*sqlx.DB, error)

// Postgres is the persistence dependency.
type Postgres struct {
	cfg    Config
	open   OpenFunc
	logger observability.Logger

	mu sync.RWMutex
	db *sqlx.DB
}

// Option is a functional option for configuring the store.
type Option func(*Postgres)

// WithLogger sets the logger for the store.
func WithLogger(logger observability.Logger) Option {
	return func(p *Postgres) {
		p.logger = logger
	}
}

// WithOpenFunc replaces sqlx.Open.
func WithOpenFunc(fn OpenFunc) Option {
	return func(p *Postgres) {
		if fn != nil {
			p.open = fn
		}
	}
}

// New creates an unconnected store.
func New(cfg Config, opts ...Option) *Postgres {
	p := &Postgres{
		cfg:    cfg,
		open:   sqlx.Open,
		logger: observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the dependency name.
func (p *Postgres) Name() string {
	return Name
}

// Connect opens the pool and verifies it with a ping bounded by ctx.
func (p *Postgres) Connect(ctx context.Context) error {
	if p.cfg.URL == "" {
		return errors.New("database URL is required")
	}

	db, err := p.open(DriverName, p.cfg.URL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if p.cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(p.cfg.MaxOpenConns)
	}
	if p.cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(p.cfg.MaxIdleConns)
	}
	if p.cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(p.cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}

	p.mu.Lock()
	p.db = db
	p.mu.Unlock()

	p.logger.Info("database connected", observability.String("driver", DriverName))
	return nil
}

// Ping checks the connection.
func (p *Postgres) Ping(ctx context.Context) error {
	db := p.DB()
	if db == nil {
		return ErrNotConnected
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// DB returns the connected handle, or nil before Connect.
func (p *Postgres) DB() *sqlx.DB {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.db
}

// Close closes the pool. Closing an unconnected store is a no-op.
func (p *Postgres) Close(_ context.Context) error {
	p.mu.Lock()
	db := p.db
	p.db = nil
	p.mu.Unlock()

	if db == nil {
		return nil
	}
	if err := db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	p.logger.Info("database connection closed")
	return nil
}
