package config

import (
	"net"
	"strconv"
	"time"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

// Config is the complete service configuration.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	CORS      CORSConfig      `yaml:"cors"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Log       LogConfig       `yaml:"log"`
}

// ServiceConfig identifies the service.
type ServiceConfig struct {
	Name    string `yaml:"name" env:"SERVICE_NAME"`
	Version string `yaml:"version" env:"SERVICE_VERSION"`
}

// ServerConfig configures the HTTP listener and request handling.
type ServerConfig struct {
	Host            string   `yaml:"host" env:"HOST"`
	Port            int      `yaml:"port" env:"PORT"`
	BodyLimit       int64    `yaml:"bodyLimit" env:"BODY_LIMIT"`
	ShutdownTimeout Duration `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`

	// TrustProxy keys clients by the X-Forwarded-For entry added by the
	// closest proxy instead of the connection address.
	TrustProxy     bool       `yaml:"trustProxy" env:"TRUST_PROXY"`
	ProxyHops      int        `yaml:"proxyHops" env:"PROXY_HOPS"`
	TrustedProxies StringList `yaml:"trustedProxies" env:"TRUSTED_PROXIES"`
}

// Address returns host:port.
func (c ServerConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// CORSConfig configures cross-origin access.
type CORSConfig struct {
	AllowedOrigins StringList `yaml:"allowedOrigins" env:"ALLOWED_ORIGINS"`
}

// RateLimitConfig configures admission control.
type RateLimitConfig struct {
	Max           int      `yaml:"max" env:"RATE_LIMIT_MAX"`
	Window        Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	Prefix        string   `yaml:"prefix" env:"RATE_LIMIT_PREFIX"`
	MaxKeys       int      `yaml:"maxKeys" env:"RATE_LIMIT_MAX_KEYS"`
	SweepSchedule string   `yaml:"sweepSchedule" env:"RATE_LIMIT_SWEEP"`
}

// DatabaseConfig configures the persistence dependency.
type DatabaseConfig struct {
	URL             string   `yaml:"url" env:"DATABASE_URL"`
	ConnectTimeout  Duration `yaml:"connectTimeout" env:"DATABASE_CONNECT_TIMEOUT"`
	MaxOpenConns    int      `yaml:"maxOpenConns" env:"DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int      `yaml:"maxIdleConns" env:"DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifetime Duration `yaml:"connMaxLifetime" env:"DATABASE_CONN_MAX_LIFETIME"`
}

// RedisConfig configures the cache dependency.
type RedisConfig struct {
	URL            string   `yaml:"url" env:"REDIS_URL"`
	ConnectTimeout Duration `yaml:"connectTimeout" env:"REDIS_CONNECT_TIMEOUT"`
	PoolSize       int      `yaml:"poolSize" env:"REDIS_POOL_SIZE"`
}

// MetricsConfig configures request telemetry.
type MetricsConfig struct {
	// Buckets are the latency histogram bounds in seconds.
	Buckets FloatList `yaml:"buckets" env:"METRICS_BUCKETS"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// Default values.
const (
	DefaultServiceName      = "user-service"
	DefaultHost             = "0.0.0.0"
	DefaultPort             = 3000
	DefaultBodyLimit        = 10 << 20 // 10MB
	DefaultShutdownTimeout  = 30 * time.Second
	DefaultProxyHops        = 1
	DefaultAllowedOrigin    = "http://localhost:3000"
	DefaultRateLimitMax     = 100
	DefaultRateLimitWindow  = 15 * time.Minute
	DefaultRateLimitPrefix  = "/api"
	DefaultRateLimitMaxKeys = 100000
	DefaultSweepSchedule    = "@every 1m"
	DefaultDatabaseURL      = "postgres://postgres@localhost:5432/users?sslmode=disable"
	DefaultDBConnectTimeout = 10 * time.Second
	DefaultRedisURL         = "redis://localhost:6379"
	DefaultRedisTimeout     = 5 * time.Second
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultMaxOpenConns     = 25
	DefaultMaxIdleConns     = 5
	DefaultConnMaxLifetime  = 5 * time.Minute
	DefaultRedisPoolSize    = 10
)

// DefaultConfig returns the configuration used when nothing overrides it.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name: DefaultServiceName,
		},
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			BodyLimit:       DefaultBodyLimit,
			ShutdownTimeout: Duration(DefaultShutdownTimeout),
			TrustProxy:      true,
			ProxyHops:       DefaultProxyHops,
		},
		CORS: CORSConfig{
			AllowedOrigins: StringList{DefaultAllowedOrigin},
		},
		RateLimit: RateLimitConfig{
			Max:           DefaultRateLimitMax,
			Window:        Duration(DefaultRateLimitWindow),
			Prefix:        DefaultRateLimitPrefix,
			MaxKeys:       DefaultRateLimitMaxKeys,
			SweepSchedule: DefaultSweepSchedule,
		},
		Database: DatabaseConfig{
			URL:             DefaultDatabaseURL,
			ConnectTimeout:  Duration(DefaultDBConnectTimeout),
			MaxOpenConns:    DefaultMaxOpenConns,
			MaxIdleConns:    DefaultMaxIdleConns,
			ConnMaxLifetime: Duration(DefaultConnMaxLifetime),
		},
		Redis: RedisConfig{
			URL:            DefaultRedisURL,
			ConnectTimeout: Duration(DefaultRedisTimeout),
			PoolSize:       DefaultRedisPoolSize,
		},
		Metrics: MetricsConfig{
			Buckets: append(FloatList(nil), observability.DefaultBuckets...),
		},
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}
