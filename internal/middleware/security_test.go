package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

func TestSecurityHeaders_Defaults(t *testing.T) {
	t.Parallel()

	stage := SecurityHeaders(DefaultSecurityHeadersConfig())
	rec := httptest.NewRecorder()
	rec.Header().Set("X-Powered-By", "Express")

	next, outcome, err := stage.Process(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, pipeline.Continue, outcome)

	h := rec.Header()
	assert.Equal(t, "max-age=31536000; includeSubDomains; preload", h.Get("Strict-Transport-Security"))
	assert.Equal(t,
		"default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self'; img-src 'self' data: https:",
		h.Get("Content-Security-Policy"))
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "SAMEORIGIN", h.Get("X-Frame-Options"))
	assert.Equal(t, "no-referrer", h.Get("Referrer-Policy"))
	assert.Equal(t, "0", h.Get("X-XSS-Protection"))
	assert.Empty(t, h.Get("X-Powered-By"))
}

func TestSecurityHeaders_Custom(t *testing.T) {
	t.Parallel()

	cfg := SecurityHeadersConfig{
		HSTS: HSTSConfig{MaxAge: 600},
		CSPDirectives: []CSPDirective{
			{Name: "default-src", Sources: []string{"'none'"}},
			{Name: "upgrade-insecure-requests"},
			{Name: ""},
		},
		Headers: map[string]string{
			"X-Frame-Options": "DENY",
			"Server":          "",
		},
	}
	stage := SecurityHeaders(cfg)

	rec := httptest.NewRecorder()
	rec.Header().Set("Server", "gateway")

	_, _, err := stage.Process(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	h := rec.Header()
	assert.Equal(t, "max-age=600", h.Get("Strict-Transport-Security"))
	assert.Equal(t, "default-src 'none'; upgrade-insecure-requests", h.Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Empty(t, h.Get("Server"))
}

func TestSecurityHeaders_DisabledHSTS(t *testing.T) {
	t.Parallel()

	stage := SecurityHeaders(SecurityHeadersConfig{})
	rec := httptest.NewRecorder()

	_, _, err := stage.Process(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)

	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))
	assert.Empty(t, rec.Header().Get("Content-Security-Policy"))
}
