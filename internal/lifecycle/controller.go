// Package lifecycle drives the process from startup to exit: it connects
// dependencies, binds the server, serves until a termination signal and
// drains in-flight requests under a deadline.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
)

// Default timeouts.
const (
	DefaultDrainTimeout   = 30 * time.Second
	DefaultConnectTimeout = 10 * time.Second
	DefaultCloseTimeout   = 5 * time.Second
)

// Dependency is an external service connected before serving starts.
type Dependency interface {
	Name() string
	Connect(ctx context.Context) error
	Close(ctx context.Context) error
}

// Server is the request listener.
type Server interface {
	// Bind claims the listen address.
	Bind(ctx context.Context) error
	// Serve accepts connections until Shutdown. It returns nil after a
	// shutdown.
	Serve() error
	// Shutdown stops accepting connections and waits for in-flight
	// requests until ctx ends.
	Shutdown(ctx context.Context) error
	// Addr returns the bound address.
	Addr() string
}

type dependency struct {
	dep     Dependency
	timeout time.Duration
}

// Controller runs the process lifecycle.
type Controller struct {
	server       Server
	deps         []dependency
	logger       observability.Logger
	drainTimeout time.Duration
	closeTimeout time.Duration
	signals      <-chan os.Signal

	onServing []func()
	onDrain   []func()

	phase  atomic.Int32
	faults chan error
}

// Option is a functional option for configuring the controller.
type Option func(*Controller)

// WithLogger sets the logger for the controller.
func WithLogger(logger observability.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithDependency appends a dependency. Dependencies are connected in the
// order they are added, each bounded by its own timeout.
func WithDependency(dep Dependency, timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout <= 0 {
			timeout = DefaultConnectTimeout
		}
		c.deps = append(c.deps, dependency{dep: dep, timeout: timeout})
	}
}

// WithDrainTimeout sets the drain deadline.
func WithDrainTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.drainTimeout = timeout
		}
	}
}

// WithCloseTimeout bounds closing dependencies after a clean drain.
func WithCloseTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.closeTimeout = timeout
		}
	}
}

// WithSignals replaces the process signal subscription.
func WithSignals(ch <-chan os.Signal) Option {
	return func(c *Controller) {
		c.signals = ch
	}
}

// OnServing registers a hook run once the server is bound.
func OnServing(fn func()) Option {
	return func(c *Controller) {
		c.onServing = append(c.onServing, fn)
	}
}

// OnDrain registers a hook run when draining starts.
func OnDrain(fn func()) Option {
	return func(c *Controller) {
		c.onDrain = append(c.onDrain, fn)
	}
}

// New creates a controller for server.
func New(server Server, opts ...Option) *Controller {
	c := &Controller{
		server:       server,
		logger:       observability.NopLogger(),
		drainTimeout: DefaultDrainTimeout,
		closeTimeout: DefaultCloseTimeout,
		faults:       make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.phase.Store(int32(PhaseInitializing))
	return c
}

// Phase returns the current phase.
func (c *Controller) Phase() Phase {
	return Phase(c.phase.Load())
}

// advance moves to phase to. Moving backwards or staying put fails.
func (c *Controller) advance(to Phase) bool {
	for {
		cur := c.phase.Load()
		if Phase(cur) >= to {
			return false
		}
		if c.phase.CompareAndSwap(cur, int32(to)) {
			c.logger.Debug("lifecycle phase changed",
				observability.String("from", Phase(cur).String()),
				observability.String("to", to.String()),
			)
			return true
		}
	}
}

// Fault reports an unrecoverable error. The controller exits with a
// failure code as soon as it observes the fault.
func (c *Controller) Fault(err error) {
	if err == nil {
		return
	}
	var pf *apperr.ProcessFault
	if !errors.As(err, &pf) {
		err = &apperr.ProcessFault{Err: err}
	}
	select {
	case c.faults <- err:
	default:
		// A fault is already pending; the process is exiting anyway.
	}
}

// Go runs fn in a goroutine. A returned error or a panic is a fault.
func (c *Controller) Go(fn func() error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				c.Fault(&apperr.ProcessFault{
					Err:   fmt.Errorf("panic: %v", r),
					Stack: debug.Stack(),
				})
			}
		}()
		if err := fn(); err != nil {
			c.Fault(err)
		}
	}()
}

// Run executes the lifecycle and returns the process exit code.
func (c *Controller) Run(ctx context.Context) int {
	signals := c.signals
	if signals == nil {
		ch := make(chan os.Signal, 2)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(ch)
		signals = ch
	}

	connected, err := c.connectAll(ctx)
	if err != nil {
		c.logFatal("failed to initialize application", err)
		c.closeAll(connected)
		c.advance(PhaseTerminated)
		return ExitFailure
	}
	c.advance(PhaseDependenciesReady)

	if err := c.server.Bind(ctx); err != nil {
		if errors.Is(err, syscall.EADDRINUSE) {
			c.logger.Error("address is already in use", observability.Error(err))
		} else {
			c.logger.Error("failed to bind server", observability.Error(err))
		}
		c.closeAll(connected)
		c.advance(PhaseTerminated)
		return ExitFailure
	}
	c.advance(PhaseServing)
	c.Go(c.server.Serve)
	for _, fn := range c.onServing {
		fn()
	}

	select {
	case sig := <-signals:
		c.logger.Info("received signal, starting graceful shutdown",
			observability.String("signal", sig.String()))
	case <-ctx.Done():
		c.logger.Info("context canceled, starting graceful shutdown")
	case err := <-c.faults:
		c.logFatal("unrecovered fault", err)
		c.advance(PhaseTerminated)
		return ExitFailure
	}

	return c.drain(signals, connected)
}

// drain shuts the server down, bounded by the drain deadline. The
// deadline timer runs independently of Shutdown, so a server that never
// finishes draining still yields a forced exit on time.
func (c *Controller) drain(signals <-chan os.Signal, connected []Dependency) int {
	c.advance(PhaseDraining)
	for _, fn := range c.onDrain {
		fn()
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.drainTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- c.server.Shutdown(ctx)
	}()

	deadline := time.NewTimer(c.drainTimeout)
	defer deadline.Stop()

	for {
		select {
		case err := <-done:
			if err != nil {
				c.logger.Error("error during server shutdown", observability.Error(err))
				c.advance(PhaseTerminated)
				return ExitFailure
			}
			c.logger.Info("HTTP server closed")
			c.closeAll(connected)
			c.advance(PhaseTerminated)
			return ExitOK

		case <-deadline.C:
			c.logger.Error("forced shutdown after drain timeout",
				observability.Duration("timeout", c.drainTimeout))
			c.advance(PhaseTerminated)
			return ExitFailure

		case sig := <-signals:
			c.logger.Info("shutdown already in progress, ignoring signal",
				observability.String("signal", sig.String()))

		case err := <-c.faults:
			c.logFatal("unrecovered fault", err)
			c.advance(PhaseTerminated)
			return ExitFailure
		}
	}
}

// connectAll connects the dependencies in order. It returns the ones
// that connected.
func (c *Controller) connectAll(ctx context.Context) ([]Dependency, error) {
	connected := make([]Dependency, 0, len(c.deps))
	for _, d := range c.deps {
		if err := c.connect(ctx, d); err != nil {
			return connected, err
		}
		c.logger.Info(d.dep.Name()+" connected successfully",
			observability.String("dependency", d.dep.Name()))
		connected = append(connected, d.dep)
	}
	return connected, nil
}

func (c *Controller) connect(ctx context.Context, d dependency) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- d.dep.Connect(ctx)
	}()

	select {
	case err := <-errc:
		if err != nil {
			return &apperr.DependencyError{Name: d.dep.Name(), Err: err}
		}
		return nil
	case <-ctx.Done():
		return &apperr.DependencyError{
			Name: d.dep.Name(),
			Err:  fmt.Errorf("connect timed out after %s: %w", d.timeout, ctx.Err()),
		}
	case err := <-c.faults:
		return err
	}
}

// closeAll closes dependencies in reverse connection order.
func (c *Controller) closeAll(deps []Dependency) {
	if len(deps) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.closeTimeout)
	defer cancel()

	for i := len(deps) - 1; i >= 0; i-- {
		if err := deps[i].Close(ctx); err != nil {
			c.logger.Warn("failed to close dependency",
				observability.String("dependency", deps[i].Name()),
				observability.Error(err),
			)
		}
	}
}

func (c *Controller) logFatal(msg string, err error) {
	fields := []observability.Field{
		observability.Error(err),
		observability.String("phase", c.Phase().String()),
	}
	var pf *apperr.ProcessFault
	if errors.As(err, &pf) && len(pf.Stack) > 0 {
		fields = append(fields, observability.String("stack", string(pf.Stack)))
	}
	c.logger.Error(msg, fields...)
}
