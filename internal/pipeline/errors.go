package pipeline

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vyrodovalexey/usergw/internal/apperr"
	"github.com/vyrodovalexey/usergw/internal/observability"
)

// ErrorHandler renders errors as structured JSON responses.
type ErrorHandler struct {
	logger observability.Logger
}

// NewErrorHandler creates an error handler.
func NewErrorHandler(logger observability.Logger) *ErrorHandler {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &ErrorHandler{logger: logger}
}

// Handle writes the response for err unless one was already sent.
// Client errors are returned as-is; anything else is logged in full and
// answered with a generic 500.
func (h *ErrorHandler) Handle(w http.ResponseWriter, r *http.Request, err error) {
	if err == nil {
		return
	}

	logger := h.logger.WithContext(r.Context()).With(
		observability.String("method", r.Method),
		observability.String("path", r.URL.Path),
	)

	status, body := apperr.Resolve(err)
	if status >= http.StatusInternalServerError {
		fields := []observability.Field{observability.Error(err)}
		var fault *apperr.HandlerFault
		if errors.As(err, &fault) && len(fault.Stack) > 0 {
			fields = append(fields, observability.String("stack", string(fault.Stack)))
		}
		logger.Error("request failed", fields...)
	} else {
		logger.Debug("request rejected",
			observability.Int("status", status),
			observability.String("code", body.Code),
		)
	}

	if rw, ok := w.(interface{ Written() bool }); ok && rw.Written() {
		logger.Warn("response already started, dropping error response",
			observability.Int("status", status),
		)
		return
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Del("Content-Length")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// NotFoundHandler answers every request with the route-not-found error.
// The message carries the request URI as sent, query string included.
func NotFoundHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.RequestURI
		if uri == "" {
			uri = r.URL.RequestURI()
		}
		nf := apperr.NotFound(r.Method, uri)
		WriteJSON(w, nf.Status, nf.Body())
	})
}
