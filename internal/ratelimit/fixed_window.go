package ratelimit

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// FixedWindow implements the fixed window rate limiting algorithm.
// Each client key gets its own window that starts with the first
// request and resets once the window length has elapsed.
type FixedWindow struct {
	limit      int
	window     time.Duration
	staleAfter time.Duration
	clock      Clock

	mu      sync.Mutex
	windows *lru.Cache[string, *windowCounter]
}

// windowCounter is the quota window of a single key.
type windowCounter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
}

// Option configures a FixedWindow.
type Option func(*FixedWindow)

// WithClock sets the clock used by Allow.
func WithClock(c Clock) Option {
	return func(l *FixedWindow) {
		if c != nil {
			l.clock = c
		}
	}
}

// NewFixedWindow creates a new fixed window limiter. Zero config fields
// fall back to their defaults.
func NewFixedWindow(cfg Config, opts ...Option) *FixedWindow {
	cfg = cfg.withDefaults()

	// lru.New only fails for a non-positive size.
	windows, _ := lru.New[string, *windowCounter](cfg.MaxKeys)

	l := &FixedWindow{
		limit:      cfg.Limit,
		window:     cfg.Window,
		staleAfter: time.Duration(cfg.StaleAfter) * cfg.Window,
		clock:      SystemClock(),
		windows:    windows,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow checks a single request for key at the limiter's current time.
func (l *FixedWindow) Allow(key string) Result {
	return l.AllowAt(key, l.clock.Now())
}

// AllowAt checks a single request for key at the given time.
func (l *FixedWindow) AllowAt(key string, now time.Time) Result {
	wc := l.counter(key, now)

	wc.mu.Lock()
	defer wc.mu.Unlock()

	elapsed := now.Sub(wc.windowStart)
	if elapsed >= l.window || elapsed < 0 {
		wc.windowStart = now
		wc.count = 0
		elapsed = 0
	}

	// The count stops at limit+1: every request past the limit is
	// rejected without touching the counter.
	if wc.count <= l.limit {
		wc.count++
	}

	resetAfter := l.window - elapsed
	remaining := l.limit - wc.count
	if remaining < 0 {
		remaining = 0
	}

	result := Result{
		Allowed:    wc.count <= l.limit,
		Limit:      l.limit,
		Remaining:  remaining,
		ResetAfter: resetAfter,
	}
	if !result.Allowed {
		result.RetryAfter = resetAfter
	}
	return result
}

// counter returns the window for key, creating it on first use.
func (l *FixedWindow) counter(key string, now time.Time) *windowCounter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if wc, ok := l.windows.Get(key); ok {
		return wc
	}
	wc := &windowCounter{windowStart: now}
	l.windows.Add(key, wc)
	return wc
}

// Reset forgets the window for key.
func (l *FixedWindow) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.windows.Remove(key)
}

// Sweep removes keys whose window ended more than StaleAfter windows
// before now and returns how many were removed.
func (l *FixedWindow) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for _, key := range l.windows.Keys() {
		wc, ok := l.windows.Peek(key)
		if !ok {
			continue
		}
		wc.mu.Lock()
		stale := now.Sub(wc.windowStart) >= l.window+l.staleAfter
		wc.mu.Unlock()

		if stale {
			l.windows.Remove(key)
			removed++
		}
	}
	return removed
}

// SweepNow runs Sweep at the limiter's current time.
func (l *FixedWindow) SweepNow() int {
	return l.Sweep(l.clock.Now())
}

// Len returns the number of tracked keys.
func (l *FixedWindow) Len() int {
	return l.windows.Len()
}

// Limit returns the per-window request limit.
func (l *FixedWindow) Limit() int {
	return l.limit
}

// Window returns the window length.
func (l *FixedWindow) Window() time.Duration {
	return l.window
}
