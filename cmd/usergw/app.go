package main

import (
	"context"
	"os"
	"strings"

	"github.com/vyrodovalexey/usergw/internal/cache"
	"github.com/vyrodovalexey/usergw/internal/config"
	"github.com/vyrodovalexey/usergw/internal/health"
	"github.com/vyrodovalexey/usergw/internal/lifecycle"
	"github.com/vyrodovalexey/usergw/internal/observability"
	"github.com/vyrodovalexey/usergw/internal/ratelimit"
	"github.com/vyrodovalexey/usergw/internal/server"
	"github.com/vyrodovalexey/usergw/internal/store"
)

// application holds all application components.
type application struct {
	config     *config.Config
	logger     observability.Logger
	recorder   *observability.Recorder
	limiter    *ratelimit.FixedWindow
	janitor    *ratelimit.Janitor
	store      *store.Postgres
	cache      *cache.Redis
	health     *health.Checker
	handler    *server.Handler
	server     *server.HTTPServer
	controller *lifecycle.Controller
}

// appOptions carries test seams.
type appOptions struct {
	signals <-chan os.Signal
	dbOpen  store.OpenFunc
	routes  []server.RouteRegistrar
}

type appOption func(*appOptions)

func withSignals(ch <-chan os.Signal) appOption {
	return func(o *appOptions) { o.signals = ch }
}

func withDBOpen(fn store.OpenFunc) appOption {
	return func(o *appOptions) { o.dbOpen = fn }
}

func withRoutes(routes ...server.RouteRegistrar) appOption {
	return func(o *appOptions) { o.routes = append(o.routes, routes...) }
}

// newApplication wires every component from cfg.
func newApplication(cfg *config.Config, logger observability.Logger, opts ...appOption) (*application, error) {
	var o appOptions
	for _, opt := range opts {
		opt(&o)
	}

	app := &application{config: cfg, logger: logger}

	app.recorder = observability.NewRecorder(
		observability.WithBuckets(cfg.Metrics.Buckets),
		observability.WithRuntimeCollectors(),
	)

	app.limiter = ratelimit.NewFixedWindow(ratelimit.Config{
		Limit:   cfg.RateLimit.Max,
		Window:  cfg.RateLimit.Window.Duration(),
		MaxKeys: cfg.RateLimit.MaxKeys,
	})
	app.janitor = ratelimit.NewJanitor(app.limiter, cfg.RateLimit.SweepSchedule, logger,
		ratelimit.WithFaultHandler(app.fault),
	)

	app.store = store.New(store.Config{
		URL:             cfg.Database.URL,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime.Duration(),
	}, store.WithLogger(logger), store.WithOpenFunc(o.dbOpen))

	app.cache = cache.New(cache.Config{
		URL:         cfg.Redis.URL,
		PoolSize:    cfg.Redis.PoolSize,
		DialTimeout: cfg.Redis.ConnectTimeout.Duration(),
	}, cache.WithLogger(logger))

	app.health = health.NewChecker(cfg.Service.Name,
		health.WithVersion(cfg.Service.Version),
		health.WithLogger(logger),
		health.WithMetrics(health.NewMetrics("usergw", app.recorder.Registry())),
	)
	app.health.AddCheck(health.PingCheck(store.Name, app.store, health.WithCheckLogger(logger)))
	app.health.AddCheck(health.PingCheck(cache.Name, app.cache, health.WithCheckLogger(logger)))

	handler, err := server.NewHandler(handlerConfig(cfg), server.Deps{
		Limiter:   app.limiter,
		Recorder:  app.recorder,
		Health:    app.health,
		ClientKey: clientKeyFunc(cfg.Server),
		Logger:    logger,
		Routes:    o.routes,
	})
	if err != nil {
		return nil, err
	}
	app.handler = handler

	app.server = server.NewHTTPServer(cfg.Server.Address(), handler, server.WithServerLogger(logger))

	controllerOpts := []lifecycle.Option{
		lifecycle.WithLogger(logger),
		lifecycle.WithDependency(app.store, cfg.Database.ConnectTimeout.Duration()),
		lifecycle.WithDependency(app.cache, cfg.Redis.ConnectTimeout.Duration()),
		lifecycle.WithDrainTimeout(cfg.Server.ShutdownTimeout.Duration()),
		lifecycle.OnServing(app.announce),
		lifecycle.OnDrain(func() { app.health.SetDraining(true) }),
	}
	if o.signals != nil {
		controllerOpts = append(controllerOpts, lifecycle.WithSignals(o.signals))
	}
	app.controller = lifecycle.New(app.server, controllerOpts...)

	return app, nil
}

// run starts background work and blocks until the lifecycle ends.
func (a *application) run(ctx context.Context) int {
	if err := a.janitor.Start(); err != nil {
		a.logger.Error("failed to start rate limit janitor", observability.Error(err))
		return lifecycle.ExitFailure
	}
	defer a.janitor.Stop()

	return a.controller.Run(ctx)
}

// fault reports a background failure to the controller, ending the
// process with exit code 1.
func (a *application) fault(err error) {
	a.controller.Fault(err)
}

// announce logs where the service can be reached.
func (a *application) announce() {
	base := "http://" + displayAddr(a.server.Addr())

	a.logger.Info("server started",
		observability.String("address", a.server.Addr()),
		observability.String("service", a.config.Service.Name),
	)
	a.logger.Info("endpoints available",
		observability.String("health", base+"/health"),
		observability.String("metrics", base+server.PathMetrics),
	)
}

// displayAddr replaces an unspecified host with localhost.
func displayAddr(addr string) string {
	for _, unspecified := range []string{"0.0.0.0:", "[::]:"} {
		if strings.HasPrefix(addr, unspecified) {
			return "localhost:" + strings.TrimPrefix(addr, unspecified)
		}
	}
	return addr
}

// handlerConfig maps the service configuration onto the handler.
func handlerConfig(cfg *config.Config) server.HandlerConfig {
	hc := server.DefaultHandlerConfig()
	hc.ServiceName = cfg.Service.Name
	hc.Version = cfg.Service.Version
	hc.CORS.AllowOrigins = append([]string(nil), cfg.CORS.AllowedOrigins...)
	hc.RateLimitPrefix = cfg.RateLimit.Prefix
	hc.RateLimitWindow = cfg.RateLimit.Window.Duration()
	hc.BodyLimit = cfg.Server.BodyLimit
	return hc
}

// clientKeyFunc picks how clients are identified for admission control
// and logging.
func clientKeyFunc(cfg config.ServerConfig) ratelimit.KeyFunc {
	if !cfg.TrustProxy {
		return ratelimit.RemoteAddrKeyFunc
	}
	return ratelimit.NewClientIPExtractor(cfg.ProxyHops, cfg.TrustedProxies).KeyFunc()
}
