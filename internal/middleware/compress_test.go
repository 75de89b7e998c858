package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompress(t *testing.T) {
	t.Parallel()

	large := strings.Repeat(`{"id":1,"name":"user"},`, 200)

	tests := []struct {
		name           string
		body           string
		acceptEncoding string
		expectGzip     bool
	}{
		{name: "large body compressed", body: large, acceptEncoding: "gzip", expectGzip: true},
		{name: "small body uncompressed", body: `{"ok":true}`, acceptEncoding: "gzip", expectGzip: false},
		{name: "client without gzip", body: large, acceptEncoding: "", expectGzip: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := Compress(0)
			require.NoError(t, err)

			handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set(HeaderContentType, ContentTypeJSON)
				_, _ = w.Write([]byte(tt.body))
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/users", nil)
			if tt.acceptEncoding != "" {
				req.Header.Set("Accept-Encoding", tt.acceptEncoding)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if !tt.expectGzip {
				assert.Empty(t, rec.Header().Get("Content-Encoding"))
				assert.Equal(t, tt.body, rec.Body.String())
				return
			}

			assert.Equal(t, "gzip", rec.Header().Get("Content-Encoding"))
			zr, err := gzip.NewReader(rec.Body)
			require.NoError(t, err)
			decoded, err := io.ReadAll(zr)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(decoded))
		})
	}
}
