package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Server timeouts.
const (
	DefaultReadTimeout       = 30 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 30 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultMaxHeaderBytes    = 1 << 20 // 1MB
)

// ErrNotBound is returned by Serve before Bind.
var ErrNotBound = errors.New("server is not bound")

// HTTPServer is the HTTP listener. Binding and serving are separate
// steps so a bind failure is reported before serving starts.
type HTTPServer struct {
	address string
	server  *http.Server
	logger  observability.Logger

	mu sync.Mutex
	ln net.Listener
}

// HTTPServerOption is a functional option for configuring the server.
type HTTPServerOption func(*HTTPServer)

// WithServerLogger sets the logger for the server.
func WithServerLogger(logger observability.Logger) HTTPServerOption {
	return func(s *HTTPServer) {
		s.logger = logger
	}
}

// NewHTTPServer creates a server for handler on address (host:port).
func NewHTTPServer(address string, handler http.Handler, opts ...HTTPServerOption) *HTTPServer {
	s := &HTTPServer{
		address: address,
		logger:  observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.server = &http.Server{
		Addr:              address,
		Handler:           handler,
		ReadTimeout:       DefaultReadTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		WriteTimeout:      DefaultWriteTimeout,
		IdleTimeout:       DefaultIdleTimeout,
		MaxHeaderBytes:    DefaultMaxHeaderBytes,
	}

	return s
}

// Bind claims the listen address.
func (s *HTTPServer) Bind(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ln != nil {
		return fmt.Errorf("server is already bound to %s", s.ln.Addr())
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.address, err)
	}
	s.ln = ln

	s.logger.Info("listener bound", observability.String("address", ln.Addr().String()))
	return nil
}

// Serve accepts connections until Shutdown. It returns nil once the
// server is shut down.
func (s *HTTPServer) Serve() error {
	s.mu.Lock()
	ln := s.ln
	s.mu.Unlock()

	if ln == nil {
		return ErrNotBound
	}

	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight requests
// until ctx ends, then closes remaining connections.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.logger.Info("stopping server")

	if err := s.server.Shutdown(ctx); err != nil {
		if closeErr := s.server.Close(); closeErr != nil {
			return fmt.Errorf("failed to close server: %w", closeErr)
		}
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// Addr returns the bound address, or the configured one before Bind.
func (s *HTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.address
}
