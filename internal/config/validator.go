package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Path    string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, e[i].Error())
	}
	return sb.String()
}

func (e *ValidationErrors) add(path, format string, args ...interface{}) {
	*e = append(*e, ValidationError{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validate checks the configuration and returns ValidationErrors
// describing every problem found.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if c.Service.Name == "" {
		errs.add("service.name", "must not be empty")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs.add("server.port", "must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.BodyLimit <= 0 {
		errs.add("server.bodyLimit", "must be positive, got %d", c.Server.BodyLimit)
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs.add("server.shutdownTimeout", "must be positive, got %s", c.Server.ShutdownTimeout)
	}
	if c.Server.ProxyHops < 0 {
		errs.add("server.proxyHops", "must not be negative, got %d", c.Server.ProxyHops)
	}

	for i, origin := range c.CORS.AllowedOrigins {
		if origin == "" {
			errs.add(fmt.Sprintf("cors.allowedOrigins[%d]", i), "must not be empty")
		}
	}

	if c.RateLimit.Max <= 0 {
		errs.add("rateLimit.max", "must be positive, got %d", c.RateLimit.Max)
	}
	if c.RateLimit.Window <= 0 {
		errs.add("rateLimit.window", "must be positive, got %s", c.RateLimit.Window)
	}
	if !strings.HasPrefix(c.RateLimit.Prefix, "/") {
		errs.add("rateLimit.prefix", "must start with '/', got %q", c.RateLimit.Prefix)
	}
	if c.RateLimit.MaxKeys <= 0 {
		errs.add("rateLimit.maxKeys", "must be positive, got %d", c.RateLimit.MaxKeys)
	}
	if _, err := cron.ParseStandard(c.RateLimit.SweepSchedule); err != nil {
		errs.add("rateLimit.sweepSchedule", "invalid schedule %q: %v", c.RateLimit.SweepSchedule, err)
	}

	if c.Database.URL == "" {
		errs.add("database.url", "must not be empty")
	}
	if c.Database.ConnectTimeout <= 0 {
		errs.add("database.connectTimeout", "must be positive, got %s", c.Database.ConnectTimeout)
	}
	if c.Redis.URL == "" {
		errs.add("redis.url", "must not be empty")
	}
	if c.Redis.ConnectTimeout <= 0 {
		errs.add("redis.connectTimeout", "must be positive, got %s", c.Redis.ConnectTimeout)
	}

	errs = append(errs, validateBuckets(c.Metrics.Buckets)...)

	switch c.Log.Format {
	case "json", "console":
	default:
		errs.add("log.format", "must be json or console, got %q", c.Log.Format)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateBuckets(buckets FloatList) ValidationErrors {
	var errs ValidationErrors
	if len(buckets) == 0 {
		errs.add("metrics.buckets", "must not be empty")
		return errs
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i] <= buckets[i-1] {
			errs.add("metrics.buckets", "must be strictly increasing")
			break
		}
	}
	return errs
}
