package pipeline

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vyrodovalexey/usergw/internal/observability"
)

func TestResponseWriter(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	assert.Equal(t, http.StatusOK, rw.Status())
	assert.False(t, rw.Written())

	rw.WriteHeader(http.StatusCreated)
	rw.WriteHeader(http.StatusInternalServerError)
	n, err := rw.Write([]byte("hello"))
	require.NoError(t, err)

	assert.Equal(t, 5, n)
	assert.Equal(t, 5, rw.Size())
	assert.Equal(t, http.StatusCreated, rw.Status())
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, rw.Written())
	assert.Same(t, rec, rw.Unwrap())
}

func TestResponseWriter_ImplicitHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	_, _ = rw.Write([]byte("x"))
	rw.Flush()

	assert.True(t, rw.Written())
	assert.Equal(t, http.StatusOK, rw.Status())
	assert.True(t, rec.Flushed)
}

func TestErrorHandler_NilError(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NewErrorHandler(nil).Handle(rec, httptest.NewRequest(http.MethodGet, "/", nil), nil)

	assert.Equal(t, 0, rec.Body.Len())
}

func TestErrorHandler_SkipsWrittenResponse(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)
	rw.WriteHeader(http.StatusOK)

	NewErrorHandler(observability.NopLogger()).Handle(
		rw, httptest.NewRequest(http.MethodGet, "/", nil), assert.AnError,
	)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, rec.Body.Len())
}

func TestNotFoundHandler(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	NotFoundHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/nope?x=1", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.JSONEq(t,
		`{"error":"Not Found","message":"Route POST /api/nope not found","code":"ROUTE_NOT_FOUND"}`,
		rec.Body.String(),
	)
}
