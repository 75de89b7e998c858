package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/usergw/internal/config"
	"github.com/vyrodovalexey/usergw/internal/lifecycle"
	"github.com/vyrodovalexey/usergw/internal/observability"
	"github.com/vyrodovalexey/usergw/internal/server"
)

// testConfig returns a configuration bound to an ephemeral local port.
func testConfig(redisAddr string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Service.Version = "test"
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.ShutdownTimeout = config.Duration(5 * time.Second)
	cfg.Database.URL = "postgres://localhost/users"
	cfg.Database.ConnectTimeout = config.Duration(time.Second)
	cfg.Redis.URL = "redis://" + redisAddr
	cfg.Redis.ConnectTimeout = config.Duration(time.Second)
	cfg.RateLimit.Max = 2
	return cfg
}

func get(t *testing.T, url string) (int, string) {
	t.Helper()

	resp, err := http.Get(url) //nolint:noctx // test helper
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

// ============================================================================
// Application lifecycle
// ============================================================================

func TestApplication_ServeAndDrain(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing() // connect
	mock.ExpectPing() // readiness
	mock.ExpectClose()

	signals := make(chan os.Signal, 1)
	routes := func(r gin.IRouter) {
		r.GET("/api/users", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"users": []string{}})
		})
	}

	app, err := newApplication(testConfig(mr.Addr()), observability.NopLogger(),
		withSignals(signals),
		withDBOpen(func(_, _ string) (*sqlx.DB, error) { return sqlx.NewDb(db, "sqlmock"), nil }),
		withRoutes(server.RouteRegistrarFunc(routes)),
	)
	require.NoError(t, err)

	exit := make(chan int, 1)
	go func() { exit <- app.run(context.Background()) }()

	require.Eventually(t, func() bool {
		return app.controller.Phase() == lifecycle.PhaseServing
	}, 5*time.Second, 10*time.Millisecond)

	base := "http://" + app.server.Addr()

	status, body := get(t, base+"/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `"status":"healthy"`)

	status, _ = get(t, base+"/health/ready")
	assert.Equal(t, http.StatusOK, status)

	status, _ = get(t, base+"/api/users")
	assert.Equal(t, http.StatusOK, status)
	status, _ = get(t, base+"/api/users")
	assert.Equal(t, http.StatusOK, status)
	status, body = get(t, base+"/api/users")
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.JSONEq(t,
		`{"error":"Too many requests from this IP, please try again later.","code":"RATE_LIMIT_EXCEEDED"}`, body)

	status, body = get(t, base+"/missing")
	assert.Equal(t, http.StatusNotFound, status)
	assert.JSONEq(t,
		`{"error":"Not Found","message":"Route GET /missing not found","code":"ROUTE_NOT_FOUND"}`, body)

	status, body = get(t, base+"/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, `http_requests_total{method="GET",route="/api/users",status="200"} 2`)
	assert.Contains(t, body, `http_requests_total{method="GET",route="unmatched",status="429"} 1`)
	assert.Contains(t, body, `http_requests_total{method="GET",route="unmatched",status="404"} 1`)
	assert.Contains(t, body, "usergw_health_checks_total")

	signals <- syscall.SIGTERM

	select {
	case code := <-exit:
		assert.Equal(t, lifecycle.ExitOK, code)
	case <-time.After(10 * time.Second):
		t.Fatal("application did not stop")
	}

	assert.Equal(t, lifecycle.PhaseTerminated, app.controller.Phase())
	assert.True(t, app.health.IsDraining())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplication_BackgroundFaultExitsWithFailure(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()

	app, err := newApplication(testConfig(mr.Addr()), observability.NopLogger(),
		withSignals(make(chan os.Signal)),
		withDBOpen(func(_, _ string) (*sqlx.DB, error) { return sqlx.NewDb(db, "sqlmock"), nil }),
	)
	require.NoError(t, err)

	exit := make(chan int, 1)
	go func() { exit <- app.run(context.Background()) }()

	require.Eventually(t, func() bool {
		return app.controller.Phase() == lifecycle.PhaseServing
	}, 5*time.Second, 10*time.Millisecond)

	app.fault(errors.New("rate limit sweep panicked: boom"))

	select {
	case code := <-exit:
		assert.Equal(t, lifecycle.ExitFailure, code)
	case <-time.After(5 * time.Second):
		t.Fatal("application did not stop")
	}
}

func TestApplication_DatabaseUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing().WillReturnError(assert.AnError)
	mock.ExpectClose()

	app, err := newApplication(testConfig(mr.Addr()), observability.NopLogger(),
		withSignals(make(chan os.Signal)),
		withDBOpen(func(_, _ string) (*sqlx.DB, error) { return sqlx.NewDb(db, "sqlmock"), nil }),
	)
	require.NoError(t, err)

	assert.Equal(t, lifecycle.ExitFailure, app.run(context.Background()))
	assert.NotEqual(t, lifecycle.PhaseServing, app.controller.Phase())
}

func TestApplication_CacheUnavailable(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	mock.ExpectPing()
	mock.ExpectClose()

	app, err := newApplication(testConfig(addr), observability.NopLogger(),
		withSignals(make(chan os.Signal)),
		withDBOpen(func(_, _ string) (*sqlx.DB, error) { return sqlx.NewDb(db, "sqlmock"), nil }),
	)
	require.NoError(t, err)

	assert.Equal(t, lifecycle.ExitFailure, app.run(context.Background()))
}

// ============================================================================
// Wiring helpers
// ============================================================================

func TestHandlerConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Service.Version = "1.2.3"
	cfg.CORS.AllowedOrigins = config.StringList{"https://app.example.com"}
	cfg.RateLimit.Prefix = "/v1"
	cfg.RateLimit.Window = config.Duration(time.Minute)
	cfg.Server.BodyLimit = 1024

	hc := handlerConfig(cfg)

	assert.Equal(t, "user-service", hc.ServiceName)
	assert.Equal(t, "1.2.3", hc.Version)
	assert.Equal(t, []string{"https://app.example.com"}, hc.CORS.AllowOrigins)
	assert.True(t, hc.CORS.AllowCredentials)
	assert.Equal(t, "/v1", hc.RateLimitPrefix)
	assert.Equal(t, time.Minute, hc.RateLimitWindow)
	assert.Equal(t, int64(1024), hc.BodyLimit)
}

func TestClientKeyFunc(t *testing.T) {
	t.Parallel()

	req, err := http.NewRequest(http.MethodGet, "/api", nil)
	require.NoError(t, err)
	req.RemoteAddr = "10.0.0.2:5000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7")

	tests := []struct {
		name string
		cfg  config.ServerConfig
		want string
	}{
		{name: "proxy trusted", cfg: config.ServerConfig{TrustProxy: true, ProxyHops: 1}, want: "203.0.113.7"},
		{name: "proxy not trusted", cfg: config.ServerConfig{TrustProxy: false}, want: "10.0.0.2"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, clientKeyFunc(tt.cfg)(req))
		})
	}
}

func TestDisplayAddr(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "localhost:3000", displayAddr("0.0.0.0:3000"))
	assert.Equal(t, "localhost:3000", displayAddr("[::]:3000"))
	assert.Equal(t, "127.0.0.1:3000", displayAddr("127.0.0.1:3000"))
}
