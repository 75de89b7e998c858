// Package ratelimit provides per-client admission control using a
// fixed-window counter.
package ratelimit

import (
	"time"
)

// Default limiter settings.
const (
	DefaultLimit      = 100
	DefaultWindow     = 15 * time.Minute
	DefaultMaxKeys    = 100000
	DefaultStaleAfter = 2
)

// Clock supplies the current time. Values returned by time.Now carry a
// monotonic reading, so durations between them are immune to wall-clock
// adjustments.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the process clock.
func SystemClock() Clock {
	return systemClock{}
}

// Result represents the result of an admission check.
type Result struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Limit is the maximum number of requests allowed per window.
	Limit int

	// Remaining is the number of requests remaining in the current window.
	Remaining int

	// ResetAfter is the duration until the current window ends.
	ResetAfter time.Duration

	// RetryAfter is the duration to wait before retrying (when not allowed).
	RetryAfter time.Duration
}

// RetryAfterMs returns RetryAfter in whole milliseconds, rounded up.
func (r Result) RetryAfterMs() int64 {
	return ceilDiv(r.RetryAfter, time.Millisecond)
}

// RetryAfterSeconds returns RetryAfter in whole seconds, rounded up.
func (r Result) RetryAfterSeconds() int64 {
	return ceilDiv(r.RetryAfter, time.Second)
}

// ResetAfterSeconds returns ResetAfter in whole seconds, rounded up.
func (r Result) ResetAfterSeconds() int64 {
	return ceilDiv(r.ResetAfter, time.Second)
}

func ceilDiv(d, unit time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + unit - 1) / unit)
}

// Config holds limiter configuration.
type Config struct {
	// Limit is the maximum number of requests allowed in one window.
	Limit int

	// Window is the length of a window.
	Window time.Duration

	// MaxKeys bounds the number of tracked client keys. The least
	// recently used key is evicted when the bound is reached.
	MaxKeys int

	// StaleAfter is the number of whole windows after which an idle
	// key is dropped by Sweep.
	StaleAfter int
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Limit:      DefaultLimit,
		Window:     DefaultWindow,
		MaxKeys:    DefaultMaxKeys,
		StaleAfter: DefaultStaleAfter,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.MaxKeys <= 0 {
		c.MaxKeys = d.MaxKeys
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	return c
}
