// Package pipeline runs requests through an ordered list of stages in
// front of route dispatch.
//
// Every request gets exactly one response and exactly one telemetry
// observation, whichever stage ends it: a stage short-circuit, a stage
// error, a route handler error or a handler panic.
package pipeline

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Recorder receives one observation per completed request.
type Recorder interface {
	Observe(method, route string, status int, durationSeconds float64)
}

// InFlightTracker is implemented by recorders that track in-flight requests.
type InFlightTracker interface {
	RequestStarted()
	RequestFinished()
}

// Pipeline is an http.Handler running stages before dispatch.
type Pipeline struct {
	stages   []Stage
	dispatch http.Handler
	recorder Recorder
	errors   *ErrorHandler
	logger   observability.Logger
	now      func() time.Time
}

// Option is a functional option for the pipeline.
type Option func(*Pipeline)

// WithStages appends stages in the order given.
func WithStages(stages ...Stage) Option {
	return func(p *Pipeline) {
		p.stages = append(p.stages, stages...)
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(r Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// WithLogger sets the logger.
func WithLogger(logger observability.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithErrorHandler sets the error handler.
func WithErrorHandler(h *ErrorHandler) Option {
	return func(p *Pipeline) {
		p.errors = h
	}
}

// New creates a pipeline that dispatches to the given handler once all
// stages have continued. A nil dispatch answers every request with 404.
func New(dispatch http.Handler, opts ...Option) *Pipeline {
	p := &Pipeline{
		dispatch: dispatch,
		logger:   observability.NopLogger(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.dispatch == nil {
		p.dispatch = NotFoundHandler()
	}
	if p.errors == nil {
		p.errors = NewErrorHandler(p.logger)
	}
	return p
}

// Stages returns the names of the configured stages in order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.stages))
	for _, s := range p.stages {
		names = append(names, s.Name())
	}
	return names
}

// ErrorHandler returns the handler used to render errors.
func (p *Pipeline) ErrorHandler() *ErrorHandler {
	return p.errors
}

// ServeHTTP implements http.Handler.
func (p *Pipeline) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := p.now()
	rw := NewResponseWriter(w)
	info := &RouteInfo{}
	r = r.WithContext(ContextWithRouteInfo(r.Context(), info))

	if t, ok := p.recorder.(InFlightTracker); ok {
		t.RequestStarted()
		defer t.RequestFinished()
	}

	defer func() {
		rec := recover()
		if rec != nil && rec != http.ErrAbortHandler {
			p.errors.Handle(rw, r, &apperr.HandlerFault{Panic: rec, Stack: debug.Stack()})
		}
		p.observe(r.Method, info.Route(), rw.Status(), p.now().Sub(start))
		if rec == http.ErrAbortHandler {
			panic(rec)
		}
	}()

	if err := p.run(rw, r); err != nil {
		p.errors.Handle(rw, r, err)
	}
}

// run executes the stages and dispatch, returning the error to render.
func (p *Pipeline) run(rw *ResponseWriter, r *http.Request) error {
	for _, s := range p.stages {
		next, outcome, err := s.Process(rw, r)
		if next != nil {
			r = next
		}
		if err != nil {
			return err
		}
		if outcome == Handled {
			return nil
		}
	}

	p.dispatch.ServeHTTP(rw, r)

	info := RouteInfoFromContext(r.Context())
	if info == nil {
		return nil
	}
	err := info.Err()
	if err == nil {
		return nil
	}
	if !apperr.IsClientError(err) {
		err = &apperr.HandlerFault{Err: err}
	}
	return err
}

func (p *Pipeline) observe(method, route string, status int, d time.Duration) {
	if p.recorder == nil {
		return
	}
	p.recorder.Observe(method, route, status, d.Seconds())
}
