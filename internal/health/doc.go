// Package health provides the liveness and readiness endpoints.
//
// Liveness reports only that the process is up. Readiness pings each
// registered dependency through its own circuit breaker and reports
// unavailable while the server is draining.
//
// Routes:
//
//	GET /health        service status, uptime and version
//	GET /health/live   liveness check
//	GET /health/ready  readiness check
package health
