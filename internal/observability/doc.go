// Package observability provides structured logging and request
// telemetry for the service.
//
// # Logging
//
// The Logger interface wraps zap:
//
//	logger, err := observability.NewLogger(observability.DefaultLogConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
//	logger.Info("request processed",
//	    observability.String("method", "GET"),
//	    observability.Int("status", 200),
//	)
//
// # Telemetry
//
// A Recorder aggregates request counts and latency histograms keyed by
// method, route pattern and status code, and exposes them for scraping:
//
//	rec := observability.NewRecorder()
//	rec.Observe("GET", "/users/:id", 200, 0.012)
//	handler := rec.Handler()
//
// Requests that match no route are labelled with UnmatchedRoute so that
// attacker-controlled paths cannot grow label cardinality.
//
// All Recorder methods are safe for concurrent use.
package observability
