// Package middleware provides the request stages and outer HTTP
// wrappers of the gateway.
//
// Stages implement pipeline.Stage and run in a fixed order:
//
//   - SecurityHeaders: hardening response headers
//   - CORS: origin policy and preflight handling
//   - RateLimiter: per-client admission for the limited path prefix
//   - BodyDecoder: size-limited JSON and form body decoding
//
// The outer wrappers follow the standard func(http.Handler) http.Handler
// pattern and run around the whole pipeline:
//
//	handler := middleware.RequestID()(
//	    middleware.Logging(logger, keyFunc)(
//	        compress(pipeline),
//	    ),
//	)
package middleware
