package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/observability"
	"github.com/vyrodovalexey/usergw/internal/pipeline"
	"github.com/vyrodovalexey/usergw/internal/ratelimit"
)

// DefaultRateLimitPrefix is the path prefix subject to admission control.
const DefaultRateLimitPrefix = "/api"

// rejectLogInterval bounds how often rejections are logged.
const rejectLogInterval = 10 * time.Second

// Admitter decides whether a client key may proceed.
type Admitter interface {
	Allow(key string) ratelimit.Result
}

// RejectionRecorder counts rejected requests.
type RejectionRecorder interface {
	RecordAdmissionRejected()
}

// RateLimiter is the admission stage for requests under a path prefix.
type RateLimiter struct {
	admitter  Admitter
	prefix    string
	keyFunc   ratelimit.KeyFunc
	recorder  RejectionRecorder
	logger    observability.Logger
	window    time.Duration
	logSample *rate.Sometimes
}

// RateLimiterOption is a functional option for configuring the rate limiter.
type RateLimiterOption func(*RateLimiter)

// WithRateLimiterLogger sets the logger for the rate limiter.
func WithRateLimiterLogger(logger observability.Logger) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.logger = logger
	}
}

// WithRateLimitPrefix sets the limited path prefix.
func WithRateLimitPrefix(prefix string) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.prefix = strings.TrimSuffix(prefix, "/")
	}
}

// WithKeyFunc sets the client key derivation.
func WithKeyFunc(fn ratelimit.KeyFunc) RateLimiterOption {
	return func(rl *RateLimiter) {
		if fn != nil {
			rl.keyFunc = fn
		}
	}
}

// WithRejectionRecorder sets the recorder notified of rejections.
func WithRejectionRecorder(r RejectionRecorder) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.recorder = r
	}
}

// WithPolicyWindow sets the window advertised in RateLimit-Policy.
func WithPolicyWindow(window time.Duration) RateLimiterOption {
	return func(rl *RateLimiter) {
		rl.window = window
	}
}

// NewRateLimiter creates the admission stage.
func NewRateLimiter(admitter Admitter, opts ...RateLimiterOption) *RateLimiter {
	rl := &RateLimiter{
		admitter:  admitter,
		prefix:    DefaultRateLimitPrefix,
		keyFunc:   ratelimit.RemoteAddrKeyFunc,
		logger:    observability.NopLogger(),
		logSample: &rate.Sometimes{Interval: rejectLogInterval},
	}
	for _, opt := range opts {
		opt(rl)
	}
	return rl
}

// Name implements pipeline.Stage.
func (rl *RateLimiter) Name() string {
	return StageRateLimit
}

// Applies reports whether path falls under the limited prefix.
func (rl *RateLimiter) Applies(path string) bool {
	if rl.prefix == "" {
		return true
	}
	return path == rl.prefix || strings.HasPrefix(path, rl.prefix+"/")
}

// Process implements pipeline.Stage.
func (rl *RateLimiter) Process(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome, error) {
	if !rl.Applies(r.URL.Path) {
		return nil, pipeline.Continue, nil
	}

	key := rl.keyFunc(r)
	res := rl.admitter.Allow(key)

	h := w.Header()
	h.Set(HeaderRateLimitLimit, strconv.Itoa(res.Limit))
	h.Set(HeaderRateLimitRemaining, strconv.Itoa(res.Remaining))
	h.Set(HeaderRateLimitReset, strconv.FormatInt(res.ResetAfterSeconds(), 10))
	if rl.window > 0 {
		h.Set(HeaderRateLimitPolicy, strconv.Itoa(res.Limit)+";w="+strconv.FormatInt(int64(rl.window/time.Second), 10))
	}

	if res.Allowed {
		return nil, pipeline.Continue, nil
	}

	h.Set(HeaderRetryAfter, strconv.FormatInt(res.RetryAfterSeconds(), 10))
	if rl.recorder != nil {
		rl.recorder.RecordAdmissionRejected()
	}
	rl.logSample.Do(func() {
		rl.logger.WithContext(r.Context()).Warn("rate limit exceeded",
			observability.String("client", key),
			observability.String("path", r.URL.Path),
			observability.Int64("retry_after_ms", res.RetryAfterMs()),
		)
	})

	return nil, pipeline.Continue, apperr.RateLimited()
}
