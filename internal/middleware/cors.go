package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

// CORSConfig contains CORS configuration.
type CORSConfig struct {
	AllowOrigins     []string
	AllowMethods     []string
	AllowHeaders     []string
	ExposeHeaders    []string
	AllowCredentials bool
	MaxAge           int
}

// DefaultCORSConfig returns default CORS configuration.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowOrigins:     []string{"http://localhost:3000"},
		AllowMethods:     []string{"GET", "HEAD", "PUT", "PATCH", "POST", "DELETE"},
		ExposeHeaders:    []string{HeaderXRequestID, HeaderRateLimitLimit, HeaderRateLimitRemaining, HeaderRateLimitReset},
		AllowCredentials: true,
		MaxAge:           86400,
	}
}

// corsHeaders holds pre-computed CORS header values.
type corsHeaders struct {
	allowOrigins     map[string]bool
	wildcardPatterns []string // Patterns like "*.example.com"
	allowAllOrigins  bool
	allowMethods     string
	allowHeaders     string
	exposeHeaders    string
	maxAge           string
	allowCredentials bool
}

// newCORSHeaders creates pre-computed CORS headers from config.
func newCORSHeaders(cfg CORSConfig) *corsHeaders {
	allowOrigins := make(map[string]bool)
	var wildcardPatterns []string
	allowAllOrigins := false

	for _, origin := range cfg.AllowOrigins {
		origin = strings.TrimSpace(origin)
		switch {
		case origin == "":
		case origin == "*":
			allowAllOrigins = true
		case strings.HasPrefix(origin, "*."):
			wildcardPatterns = append(wildcardPatterns, origin)
		default:
			allowOrigins[origin] = true
		}
	}

	h := &corsHeaders{
		allowOrigins:     allowOrigins,
		wildcardPatterns: wildcardPatterns,
		allowAllOrigins:  allowAllOrigins,
		allowMethods:     strings.Join(cfg.AllowMethods, ","),
		allowHeaders:     strings.Join(cfg.AllowHeaders, ","),
		exposeHeaders:    strings.Join(cfg.ExposeHeaders, ","),
		allowCredentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		h.maxAge = strconv.Itoa(cfg.MaxAge)
	}
	return h
}

// isOriginAllowed checks if the given origin is allowed.
func (h *corsHeaders) isOriginAllowed(origin string) bool {
	if origin == "" {
		return false
	}

	if h.allowAllOrigins || h.allowOrigins[origin] {
		return true
	}

	for _, pattern := range h.wildcardPatterns {
		if matchWildcardOrigin(origin, pattern) {
			return true
		}
	}

	return false
}

// matchWildcardOrigin checks if an origin matches a wildcard pattern.
// Pattern format: "*.example.com" matches "sub.example.com", "api.example.com", etc.
func matchWildcardOrigin(origin, pattern string) bool {
	if !strings.HasPrefix(pattern, "*.") {
		return false
	}

	suffix := pattern[1:]

	host := origin
	if idx := strings.Index(host, "://"); idx != -1 {
		host = host[idx+3:]
	}
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}

	return len(host) > len(suffix) && strings.HasSuffix(host, suffix)
}

// apply sets CORS headers for an allowed origin. Disallowed origins get
// no CORS headers and the browser enforces the policy.
func (h *corsHeaders) apply(w http.ResponseWriter, r *http.Request, preflight bool) {
	header := w.Header()
	if !h.allowAllOrigins {
		header.Add(HeaderVary, HeaderOrigin)
	}

	origin := r.Header.Get(HeaderOrigin)
	if !h.isOriginAllowed(origin) {
		return
	}

	header.Set("Access-Control-Allow-Origin", origin)
	if h.allowCredentials {
		header.Set("Access-Control-Allow-Credentials", "true")
	}

	if !preflight {
		if h.exposeHeaders != "" {
			header.Set("Access-Control-Expose-Headers", h.exposeHeaders)
		}
		return
	}

	if h.allowMethods != "" {
		header.Set("Access-Control-Allow-Methods", h.allowMethods)
	}

	allowHeaders := h.allowHeaders
	if allowHeaders == "" {
		allowHeaders = r.Header.Get("Access-Control-Request-Headers")
		header.Add(HeaderVary, "Access-Control-Request-Headers")
	}
	if allowHeaders != "" {
		header.Set("Access-Control-Allow-Headers", allowHeaders)
	}

	if h.maxAge != "" {
		header.Set("Access-Control-Max-Age", h.maxAge)
	}
}

// CORS returns the CORS policy stage. Preflight (OPTIONS) requests are
// answered with 200 and an empty body.
func CORS(cfg CORSConfig) pipeline.Stage {
	headers := newCORSHeaders(cfg)

	return pipeline.NewStage(StageCORS,
		func(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome, error) {
			preflight := r.Method == http.MethodOptions
			headers.apply(w, r, preflight)

			if preflight {
				w.Header().Set("Content-Length", "0")
				w.WriteHeader(http.StatusOK)
				return nil, pipeline.Handled, nil
			}

			return nil, pipeline.Continue, nil
		})
}
