package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// ============================================================================
// Construction
// ============================================================================

func TestNewFixedWindow_Defaults(t *testing.T) {
	t.Parallel()

	l := NewFixedWindow(Config{})

	assert.Equal(t, DefaultLimit, l.Limit())
	assert.Equal(t, DefaultWindow, l.Window())
	assert.Equal(t, 0, l.Len())
}

func TestNewFixedWindow_Custom(t *testing.T) {
	t.Parallel()

	l := NewFixedWindow(Config{Limit: 5, Window: time.Second})

	assert.Equal(t, 5, l.Limit())
	assert.Equal(t, time.Second, l.Window())
}

// ============================================================================
// Admission
// ============================================================================

func TestFixedWindow_AllowsUpToLimit(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		limit  int
		window time.Duration
	}{
		{name: "default", limit: 100, window: 15 * time.Minute},
		{name: "single request", limit: 1, window: time.Second},
		{name: "small window", limit: 10, window: 50 * time.Millisecond},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			l := NewFixedWindow(Config{Limit: tt.limit, Window: tt.window}, WithClock(clock))

			for i := 0; i < tt.limit; i++ {
				res := l.Allow("client")
				require.True(t, res.Allowed, "request %d should be allowed", i+1)
				assert.Equal(t, tt.limit-i-1, res.Remaining)
				assert.Zero(t, res.RetryAfter)
			}

			res := l.Allow("client")
			assert.False(t, res.Allowed)
			assert.Equal(t, 0, res.Remaining)
			assert.Positive(t, res.RetryAfterMs())
			assert.Equal(t, tt.window, res.RetryAfter)
		})
	}
}

func TestFixedWindow_RetryAfterShrinksWithinWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute}, WithClock(clock))

	require.True(t, l.Allow("k").Allowed)

	clock.Advance(20 * time.Second)
	res := l.Allow("k")

	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)
	assert.Equal(t, int64(40000), res.RetryAfterMs())
	assert.Equal(t, int64(40), res.RetryAfterSeconds())
}

func TestFixedWindow_ResetsAfterWindow(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindow(Config{Limit: 3, Window: time.Minute}, WithClock(clock))

	for i := 0; i < 5; i++ {
		l.Allow("k")
	}
	require.False(t, l.Allow("k").Allowed)

	clock.Advance(time.Minute)

	res := l.Allow("k")
	assert.True(t, res.Allowed)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetAfter)
}

func TestFixedWindow_KeysAreIndependent(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute}, WithClock(clock))

	assert.True(t, l.Allow("a").Allowed)
	assert.False(t, l.Allow("a").Allowed)
	assert.True(t, l.Allow("b").Allowed)
}

func TestFixedWindow_CountNeverExceedsLimitPlusOne(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindow(Config{Limit: 2, Window: time.Minute}, WithClock(clock))

	for i := 0; i < 50; i++ {
		l.Allow("k")
	}

	wc, ok := l.windows.Peek("k")
	require.True(t, ok)
	assert.Equal(t, 3, wc.count)
}

func TestFixedWindow_ClockGoingBackwardsStartsNewWindow(t *testing.T) {
	t.Parallel()

	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute})
	start := time.Unix(1_700_000_000, 0)

	require.True(t, l.AllowAt("k", start).Allowed)
	require.False(t, l.AllowAt("k", start.Add(time.Second)).Allowed)

	res := l.AllowAt("k", start.Add(-time.Second))
	assert.True(t, res.Allowed)
}

func TestFixedWindow_Reset(t *testing.T) {
	t.Parallel()

	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute})

	require.True(t, l.Allow("k").Allowed)
	require.False(t, l.Allow("k").Allowed)

	l.Reset("k")

	assert.True(t, l.Allow("k").Allowed)
}

func TestFixedWindow_Concurrent(t *testing.T) {
	t.Parallel()

	const limit = 100
	l := NewFixedWindow(Config{Limit: limit, Window: time.Hour})

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				if l.Allow("shared").Allowed {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, limit, allowed)
}

// ============================================================================
// Eviction
// ============================================================================

func TestFixedWindow_MaxKeysEvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute, MaxKeys: 3})

	for i := 0; i < 10; i++ {
		l.Allow(fmt.Sprintf("client-%d", i))
	}

	assert.Equal(t, 3, l.Len())
	_, ok := l.windows.Peek("client-0")
	assert.False(t, ok)
	_, ok = l.windows.Peek("client-9")
	assert.True(t, ok)
}

func TestFixedWindow_Sweep(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := NewFixedWindow(Config{Limit: 1, Window: time.Minute, StaleAfter: 2}, WithClock(clock))

	l.Allow("old")
	clock.Advance(2 * time.Minute)
	l.Allow("recent")

	// "old" window ended 1 minute ago: kept.
	assert.Equal(t, 0, l.SweepNow())
	assert.Equal(t, 2, l.Len())

	// "old" window ended 2 minutes ago: dropped.
	clock.Advance(time.Minute)
	assert.Equal(t, 1, l.SweepNow())
	assert.Equal(t, 1, l.Len())

	_, ok := l.windows.Peek("recent")
	assert.True(t, ok)
}

// ============================================================================
// Result helpers
// ============================================================================

func TestResult_Rounding(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		retry    time.Duration
		wantMs   int64
		wantSecs int64
	}{
		{name: "zero", retry: 0, wantMs: 0, wantSecs: 0},
		{name: "sub millisecond", retry: 10 * time.Microsecond, wantMs: 1, wantSecs: 1},
		{name: "exact seconds", retry: 3 * time.Second, wantMs: 3000, wantSecs: 3},
		{name: "fractional seconds", retry: 1500 * time.Millisecond, wantMs: 1500, wantSecs: 2},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := Result{RetryAfter: tt.retry, ResetAfter: tt.retry}
			assert.Equal(t, tt.wantMs, r.RetryAfterMs())
			assert.Equal(t, tt.wantSecs, r.RetryAfterSeconds())
			assert.Equal(t, tt.wantSecs, r.ResetAfterSeconds())
		})
	}
}

func TestSystemClock(t *testing.T) {
	t.Parallel()

	before := time.Now()
	now := SystemClock().Now()

	assert.False(t, now.Before(before))
}
