package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// ErrCircuitOpen is returned by a check whose breaker is open.
var ErrCircuitOpen = errors.New("circuit open")

// Pinger is a dependency that can be checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BreakerSettings configures the circuit breaker in front of a check.
type BreakerSettings struct {
	// MaxFailures is the number of consecutive failures that opens the breaker.
	MaxFailures uint32

	// OpenTimeout is how long the breaker stays open before a trial call.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings returns the default breaker settings.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{
		MaxFailures: 3,
		OpenTimeout: 30 * time.Second,
	}
}

// DependencyCheck checks one dependency through a circuit breaker.
type DependencyCheck struct {
	name    string
	checkFn func(ctx context.Context) error
	breaker *gobreaker.CircuitBreaker
	logger  observability.Logger
}

// DependencyCheckOption is a function that configures a DependencyCheck.
type DependencyCheckOption func(*dependencyCheckOptions)

type dependencyCheckOptions struct {
	settings BreakerSettings
	logger   observability.Logger
}

// WithBreakerSettings overrides the default breaker settings.
func WithBreakerSettings(s BreakerSettings) DependencyCheckOption {
	return func(o *dependencyCheckOptions) {
		o.settings = s
	}
}

// WithCheckLogger sets the logger receiving breaker state changes.
func WithCheckLogger(logger observability.Logger) DependencyCheckOption {
	return func(o *dependencyCheckOptions) {
		o.logger = logger
	}
}

// NewDependencyCheck creates a new dependency check.
func NewDependencyCheck(
	name string,
	checkFn func(ctx context.Context) error,
	opts ...DependencyCheckOption,
) *DependencyCheck {
	o := &dependencyCheckOptions{
		settings: DefaultBreakerSettings(),
		logger:   observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.settings.MaxFailures == 0 {
		o.settings.MaxFailures = DefaultBreakerSettings().MaxFailures
	}

	d := &DependencyCheck{
		name:    name,
		checkFn: checkFn,
		logger:  o.logger,
	}

	maxFailures := o.settings.MaxFailures
	d.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: o.settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			d.logger.Warn("health check breaker state change",
				observability.String("check", name),
				observability.String("from", from.String()),
				observability.String("to", to.String()),
			)
		},
	})

	return d
}

// PingCheck creates a check that pings p.
func PingCheck(name string, p Pinger, opts ...DependencyCheckOption) *DependencyCheck {
	return NewDependencyCheck(name, func(ctx context.Context) error {
		if p == nil {
			return fmt.Errorf("%s is not configured", name)
		}
		return p.Ping(ctx)
	}, opts...)
}

// Name returns the name of the dependency check.
func (d *DependencyCheck) Name() string {
	return d.name
}

// Check performs the dependency health check.
func (d *DependencyCheck) Check(ctx context.Context) error {
	_, err := d.breaker.Execute(func() (interface{}, error) {
		return nil, d.checkFn(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s: %w", d.name, ErrCircuitOpen)
	}
	return err
}

// State returns the breaker state ("closed", "half-open" or "open").
func (d *DependencyCheck) State() string {
	return d.breaker.State().String()
}
