package server

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/usergw/internal/health"
	"github.com/vyrodovalexey/usergw/internal/middleware"
	"github.com/vyrodovalexey/usergw/internal/observability"
	"github.com/vyrodovalexey/usergw/internal/pipeline"
	"github.com/vyrodovalexey/usergw/internal/ratelimit"
)

// HandlerConfig holds the settings of the request handling chain.
type HandlerConfig struct {
	ServiceName string
	Version     string

	CORS     middleware.CORSConfig
	Security middleware.SecurityHeadersConfig

	// RateLimitPrefix is the path prefix subject to admission control.
	RateLimitPrefix string
	// RateLimitWindow is advertised in the RateLimit-Policy header.
	RateLimitWindow time.Duration

	// BodyLimit is the maximum decoded request body in bytes.
	BodyLimit int64

	// CompressMinSize is the smallest response body that is gzipped.
	CompressMinSize int
}

// DefaultHandlerConfig returns the default handler settings.
func DefaultHandlerConfig() HandlerConfig {
	return HandlerConfig{
		ServiceName:     "user-service",
		CORS:            middleware.DefaultCORSConfig(),
		Security:        middleware.DefaultSecurityHeadersConfig(),
		RateLimitPrefix: middleware.DefaultRateLimitPrefix,
		RateLimitWindow: ratelimit.DefaultWindow,
		BodyLimit:       middleware.DefaultMaxBodySize,
		CompressMinSize: middleware.DefaultCompressMinSize,
	}
}

// Deps are the shared components the handler is built from.
type Deps struct {
	// Limiter admits requests under the rate limit prefix. Required.
	Limiter middleware.Admitter
	// Recorder receives one observation per request and serves /metrics. Required.
	Recorder *observability.Recorder
	// Health serves the health routes when set.
	Health *health.Checker
	// ClientKey derives the rate limit and log key. Defaults to RemoteAddr.
	ClientKey ratelimit.KeyFunc
	// Logger defaults to a no-op logger.
	Logger observability.Logger
	// Routes mount application routes.
	Routes []RouteRegistrar
}

// Handler is the assembled request handler.
type Handler struct {
	http.Handler

	pipeline *pipeline.Pipeline
	engine   *gin.Engine
}

// Pipeline returns the request pipeline.
func (h *Handler) Pipeline() *pipeline.Pipeline {
	return h.pipeline
}

// Engine returns the gin router behind the pipeline.
func (h *Handler) Engine() *gin.Engine {
	return h.engine
}

// NewHandler assembles the router, the pipeline and the outer wrappers.
func NewHandler(cfg HandlerConfig, deps Deps) (*Handler, error) {
	if deps.Limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	if deps.Recorder == nil {
		return nil, errors.New("telemetry recorder is required")
	}
	if deps.Logger == nil {
		deps.Logger = observability.NopLogger()
	}
	if deps.ClientKey == nil {
		deps.ClientKey = ratelimit.RemoteAddrKeyFunc
	}

	errs := pipeline.NewErrorHandler(deps.Logger)

	engine := newRouter(errs)
	if deps.Health != nil {
		deps.Health.RegisterRoutes(engine)
	}
	metrics := gin.WrapH(deps.Recorder.Handler())
	engine.GET(PathMetrics, metrics)
	engine.HEAD(PathMetrics, metrics)
	apiRoot := apiRootHandler(cfg.ServiceName, cfg.Version)
	engine.GET(PathAPIRoot, apiRoot)
	engine.HEAD(PathAPIRoot, apiRoot)
	for _, r := range deps.Routes {
		r.RegisterRoutes(engine)
	}

	limiter := middleware.NewRateLimiter(deps.Limiter,
		middleware.WithRateLimitPrefix(cfg.RateLimitPrefix),
		middleware.WithKeyFunc(deps.ClientKey),
		middleware.WithRejectionRecorder(deps.Recorder),
		middleware.WithRateLimiterLogger(deps.Logger),
		middleware.WithPolicyWindow(cfg.RateLimitWindow),
	)

	p := pipeline.New(trimTrailingSlash(engine),
		pipeline.WithStages(
			middleware.SecurityHeaders(cfg.Security),
			middleware.CORS(cfg.CORS),
			limiter,
			middleware.BodyDecoder(cfg.BodyLimit),
		),
		pipeline.WithRecorder(deps.Recorder),
		pipeline.WithErrorHandler(errs),
		pipeline.WithLogger(deps.Logger),
	)

	compress, err := middleware.Compress(cfg.CompressMinSize)
	if err != nil {
		return nil, fmt.Errorf("failed to build handler: %w", err)
	}

	var handler http.Handler = p
	handler = compress(handler)
	handler = middleware.Logging(deps.Logger, deps.ClientKey)(handler)
	handler = middleware.RequestID()(handler)

	return &Handler{Handler: handler, pipeline: p, engine: engine}, nil
}
