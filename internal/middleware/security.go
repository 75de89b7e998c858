package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

// HSTSConfig configures Strict-Transport-Security.
type HSTSConfig struct {
	MaxAge            int
	IncludeSubDomains bool
	Preload           bool
}

// CSPDirective is one Content-Security-Policy directive.
type CSPDirective struct {
	Name    string
	Sources []string
}

// SecurityHeadersConfig configures the fixed response headers.
type SecurityHeadersConfig struct {
	HSTS          HSTSConfig
	CSPDirectives []CSPDirective
	// Headers holds additional static headers; an empty value removes
	// the header.
	Headers map[string]string
}

// DefaultSecurityHeadersConfig returns the default hardening headers.
func DefaultSecurityHeadersConfig() SecurityHeadersConfig {
	return SecurityHeadersConfig{
		HSTS: HSTSConfig{
			MaxAge:            31536000,
			IncludeSubDomains: true,
			Preload:           true,
		},
		CSPDirectives: []CSPDirective{
			{Name: "default-src", Sources: []string{"'self'"}},
			{Name: "style-src", Sources: []string{"'self'", "'unsafe-inline'"}},
			{Name: "script-src", Sources: []string{"'self'"}},
			{Name: "img-src", Sources: []string{"'self'", "data:", "https:"}},
		},
		Headers: map[string]string{
			"Cross-Origin-Opener-Policy":        "same-origin",
			"Cross-Origin-Resource-Policy":      "same-origin",
			"Origin-Agent-Cluster":              "?1",
			"Referrer-Policy":                   "no-referrer",
			"X-Content-Type-Options":            "nosniff",
			"X-DNS-Prefetch-Control":            "off",
			"X-Download-Options":                "noopen",
			"X-Frame-Options":                   "SAMEORIGIN",
			"X-Permitted-Cross-Domain-Policies": "none",
			"X-XSS-Protection":                  "0",
		},
	}
}

// SecurityHeaders returns the stage attaching the configured headers.
// It never blocks a request.
func SecurityHeaders(cfg SecurityHeadersConfig) pipeline.Stage {
	set, remove := buildSecurityHeaders(cfg)

	return pipeline.NewStage(StageSecurityHeaders,
		func(w http.ResponseWriter, r *http.Request) (*http.Request, pipeline.Outcome, error) {
			h := w.Header()
			for name, value := range set {
				h.Set(name, value)
			}
			for _, name := range remove {
				h.Del(name)
			}
			return nil, pipeline.Continue, nil
		})
}

func buildSecurityHeaders(cfg SecurityHeadersConfig) (map[string]string, []string) {
	set := make(map[string]string, len(cfg.Headers)+2)
	var remove []string

	if cfg.HSTS.MaxAge > 0 {
		set["Strict-Transport-Security"] = buildHSTS(cfg.HSTS)
	}
	if policy := buildCSPPolicy(cfg.CSPDirectives); policy != "" {
		set["Content-Security-Policy"] = policy
	}
	for name, value := range cfg.Headers {
		if value == "" {
			remove = append(remove, name)
			continue
		}
		set[name] = value
	}
	remove = append(remove, "X-Powered-By")
	return set, remove
}

func buildHSTS(hsts HSTSConfig) string {
	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("max-age=%d", hsts.MaxAge))

	if hsts.IncludeSubDomains {
		builder.WriteString("; includeSubDomains")
	}

	if hsts.Preload {
		builder.WriteString("; preload")
	}

	return builder.String()
}

func buildCSPPolicy(directives []CSPDirective) string {
	parts := make([]string, 0, len(directives))
	for _, d := range directives {
		if d.Name == "" {
			continue
		}
		if len(d.Sources) == 0 {
			parts = append(parts, d.Name)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %s", d.Name, strings.Join(d.Sources, " ")))
	}
	return strings.Join(parts, "; ")
}
