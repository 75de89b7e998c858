package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Status represents the health status.
type Status string

const (
	// StatusHealthy indicates the service is healthy.
	StatusHealthy Status = "healthy"
	// StatusUnhealthy indicates a dependency check failed.
	StatusUnhealthy Status = "unhealthy"
	// StatusDraining indicates the service is shutting down.
	StatusDraining Status = "draining"
)

// DefaultCheckTimeout bounds a readiness check.
const DefaultCheckTimeout = 5 * time.Second

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    Status    `json:"status"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version,omitempty"`
	Uptime    string    `json:"uptime,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadinessResponse represents the readiness check response.
type ReadinessResponse struct {
	Status    Status                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// CheckResult represents the result of a single dependency check.
type CheckResult struct {
	Status   Status `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Checker provides health and readiness checking functionality.
type Checker struct {
	service      string
	version      string
	startTime    time.Time
	checkTimeout time.Duration
	logger       observability.Logger
	metrics      *Metrics

	mu       sync.RWMutex
	checks   []*DependencyCheck
	draining atomic.Bool
}

// Option is a functional option for configuring the checker.
type Option func(*Checker)

// WithVersion sets the reported version.
func WithVersion(version string) Option {
	return func(c *Checker) {
		c.version = version
	}
}

// WithCheckTimeout sets the readiness check timeout.
func WithCheckTimeout(timeout time.Duration) Option {
	return func(c *Checker) {
		if timeout > 0 {
			c.checkTimeout = timeout
		}
	}
}

// WithLogger sets the logger for failed checks.
func WithLogger(logger observability.Logger) Option {
	return func(c *Checker) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics updated by readiness checks.
func WithMetrics(m *Metrics) Option {
	return func(c *Checker) {
		c.metrics = m
	}
}

// NewChecker creates a new health checker.
func NewChecker(service string, opts ...Option) *Checker {
	c := &Checker{
		service:      service,
		startTime:    time.Now(),
		checkTimeout: DefaultCheckTimeout,
		logger:       observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddCheck registers a readiness check.
func (c *Checker) AddCheck(check *DependencyCheck) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks = append(c.checks, check)
}

// SetDraining marks the service as draining (or not).
func (c *Checker) SetDraining(draining bool) {
	c.draining.Store(draining)
}

// IsDraining reports whether the service is draining.
func (c *Checker) IsDraining() bool {
	return c.draining.Load()
}

// Health returns the health status.
func (c *Checker) Health() HealthResponse {
	status := StatusHealthy
	if c.IsDraining() {
		status = StatusDraining
	}
	return HealthResponse{
		Status:    status,
		Service:   c.service,
		Version:   c.version,
		Uptime:    time.Since(c.startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
}

// Readiness runs the registered checks concurrently. No check runs
// while draining.
func (c *Checker) Readiness(ctx context.Context) ReadinessResponse {
	response := ReadinessResponse{
		Status:    StatusHealthy,
		Timestamp: time.Now().UTC(),
	}
	if c.IsDraining() {
		response.Status = StatusDraining
		return response
	}

	c.mu.RLock()
	checks := make([]*DependencyCheck, len(c.checks))
	copy(checks, c.checks)
	c.mu.RUnlock()

	if len(checks) == 0 {
		return response
	}

	ctx, cancel := context.WithTimeout(ctx, c.checkTimeout)
	defer cancel()

	response.Checks = make(map[string]CheckResult, len(checks))

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, check := range checks {
		wg.Add(1)
		go func(d *DependencyCheck) {
			defer wg.Done()

			start := time.Now()
			err := d.Check(ctx)
			duration := time.Since(start)

			result := CheckResult{Status: StatusHealthy, Duration: duration.String()}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				c.logger.Warn("health check failed",
					observability.String("check", d.Name()),
					observability.Error(err),
					observability.Duration("duration", duration),
				)
			}
			if c.metrics != nil {
				c.metrics.Observe(d.Name(), err == nil, duration)
			}

			mu.Lock()
			response.Checks[d.Name()] = result
			if err != nil {
				response.Status = StatusUnhealthy
			}
			mu.Unlock()
		}(check)
	}
	wg.Wait()

	return response
}

// HealthHandler serves the service status. It answers 503 while draining.
func (c *Checker) HealthHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Health()
		ctx.JSON(statusCode(response.Status), response)
	}
}

// LivenessHandler returns an HTTP handler for the liveness endpoint (simple ping).
func (c *Checker) LivenessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"timestamp": time.Now().UTC(),
		})
	}
}

// ReadinessHandler serves the readiness check.
func (c *Checker) ReadinessHandler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		response := c.Readiness(ctx.Request.Context())
		ctx.JSON(statusCode(response.Status), response)
	}
}

// RegisterRoutes mounts the health routes for GET and HEAD.
func (c *Checker) RegisterRoutes(r gin.IRoutes) {
	routes := map[string]gin.HandlerFunc{
		"/health":       c.HealthHandler(),
		"/health/live":  c.LivenessHandler(),
		"/health/ready": c.ReadinessHandler(),
	}
	for path, handler := range routes {
		r.GET(path, handler)
		r.HEAD(path, handler)
	}
}

func statusCode(s Status) int {
	if s == StatusHealthy {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}
