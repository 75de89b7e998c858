package middleware

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/pipeline"
)

func statusOf(t *testing.T, err error) int {
	t.Helper()
	var ce *apperr.ClientError
	require.True(t, errors.As(err, &ce), "expected client error, got %v", err)
	return ce.Status
}

func TestBodyDecoder_JSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        string
		wantStatus  int
	}{
		{name: "object", contentType: "application/json", body: `{"name":"ada","age":36}`},
		{name: "array", contentType: "application/json", body: `[1,2,3]`},
		{name: "charset parameter", contentType: "application/json; charset=utf-8", body: `{"a":1}`},
		{name: "vendor json", contentType: "application/vnd.api+json", body: `{"a":1}`},
		{name: "empty body", contentType: "application/json", body: ""},
		{name: "malformed", contentType: "application/json", body: `{"name":`, wantStatus: http.StatusBadRequest},
		{name: "scalar rejected", contentType: "application/json", body: `"text"`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stage := BodyDecoder(DefaultMaxBodySize)
			req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(tt.body))
			req.Header.Set(HeaderContentType, tt.contentType)

			next, outcome, err := stage.Process(httptest.NewRecorder(), req)
			assert.Equal(t, pipeline.Continue, outcome)

			if tt.wantStatus != 0 {
				require.Error(t, err)
				assert.Equal(t, tt.wantStatus, statusOf(t, err))
				assert.ErrorIs(t, err, apperr.ErrMalformedBody)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, next)

			body, ok := BodyFromContext(next.Context())
			require.True(t, ok)
			assert.Equal(t, tt.body, string(body.Raw))

			// The raw body stays readable for the handler.
			raw, err := io.ReadAll(next.Body)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(raw))
		})
	}
}

func TestBodyDecoder_JSONFields(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(0)
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"user":{"name":"ada"}}`))
	req.Header.Set(HeaderContentType, ContentTypeJSON)

	next, _, err := stage.Process(httptest.NewRecorder(), req)
	require.NoError(t, err)

	body, ok := BodyFromContext(next.Context())
	require.True(t, ok)
	assert.Equal(t, ContentTypeJSON, body.ContentType)
	assert.Equal(t, "ada", body.JSON.Get("user.name").String())
}

func TestBodyDecoder_Form(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(DefaultMaxBodySize)
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("user=ada&role=admin&role=dev"))
	req.Header.Set(HeaderContentType, ContentTypeFormURLEncoded)

	next, _, err := stage.Process(httptest.NewRecorder(), req)
	require.NoError(t, err)

	body, ok := BodyFromContext(next.Context())
	require.True(t, ok)
	assert.Equal(t, "ada", body.Form.Get("user"))
	assert.Equal(t, []string{"admin", "dev"}, body.Form["role"])
}

func TestBodyDecoder_MalformedForm(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(DefaultMaxBodySize)
	req := httptest.NewRequest(http.MethodPost, "/api/login", strings.NewReader("a=%zz"))
	req.Header.Set(HeaderContentType, ContentTypeFormURLEncoded)

	_, _, err := stage.Process(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestBodyDecoder_TooLarge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		contentLength int64
	}{
		{name: "declared length", contentLength: 11},
		{name: "chunked body", contentLength: -1},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			stage := BodyDecoder(10)
			req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"a":"bcd"}`))
			req.Header.Set(HeaderContentType, ContentTypeJSON)
			req.ContentLength = tt.contentLength

			_, _, err := stage.Process(httptest.NewRecorder(), req)
			require.Error(t, err)
			assert.Equal(t, http.StatusRequestEntityTooLarge, statusOf(t, err))
			assert.ErrorIs(t, err, apperr.ErrBodyTooLarge)
		})
	}
}

func TestBodyDecoder_ExactLimit(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(7)
	req := httptest.NewRequest(http.MethodPost, "/api/users", strings.NewReader(`{"a":1}`))
	req.Header.Set(HeaderContentType, ContentTypeJSON)

	_, _, err := stage.Process(httptest.NewRecorder(), req)
	assert.NoError(t, err)
}

func TestBodyDecoder_ReadError(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(DefaultMaxBodySize)
	req := httptest.NewRequest(http.MethodPost, "/api/users", nil)
	req.Body = io.NopCloser(iotest.ErrReader(errors.New("connection reset")))
	req.ContentLength = -1
	req.Header.Set(HeaderContentType, ContentTypeJSON)

	_, _, err := stage.Process(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, statusOf(t, err))
}

func TestBodyDecoder_OtherContentTypes(t *testing.T) {
	t.Parallel()

	t.Run("within limit", func(t *testing.T) {
		t.Parallel()

		stage := BodyDecoder(16)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain text"))
		req.Header.Set(HeaderContentType, "text/plain")
		req.ContentLength = -1

		next, _, err := stage.Process(httptest.NewRecorder(), req)
		require.NoError(t, err)
		assert.Nil(t, next)

		raw, err := io.ReadAll(req.Body)
		require.NoError(t, err)
		assert.Equal(t, "plain text", string(raw))

		_, ok := BodyFromContext(req.Context())
		assert.False(t, ok)
	})

	t.Run("over limit while reading", func(t *testing.T) {
		t.Parallel()

		stage := BodyDecoder(4)
		req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("plain text"))
		req.Header.Set(HeaderContentType, "application/octet-stream")
		req.ContentLength = -1

		_, _, err := stage.Process(httptest.NewRecorder(), req)
		require.NoError(t, err)

		_, err = io.ReadAll(req.Body)
		assert.ErrorIs(t, err, apperr.ErrBodyTooLarge)

		var clientErr *apperr.ClientError
		require.ErrorAs(t, err, &clientErr)
		assert.Equal(t, http.StatusRequestEntityTooLarge, clientErr.Status)
		assert.Contains(t, clientErr.Message, "4 bytes")
	})
}

func TestBodyDecoder_NoBody(t *testing.T) {
	t.Parallel()

	stage := BodyDecoder(DefaultMaxBodySize)
	req := httptest.NewRequest(http.MethodGet, "/api/users", nil)

	next, outcome, err := stage.Process(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Nil(t, next)
	assert.Equal(t, pipeline.Continue, outcome)
}

func TestParseMediaType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"application/json", "application/json"},
		{"Application/JSON; charset=utf-8", "application/json"},
		{"text/plain;;", "text/plain"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, parseMediaType(tt.in))
		})
	}
}
