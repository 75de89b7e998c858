// Package apperr defines the error taxonomy shared by the request
// pipeline and the lifecycle controller.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Machine-readable error codes sent to clients.
const (
	CodeRouteNotFound     = "ROUTE_NOT_FOUND"
	CodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
	CodePayloadTooLarge   = "PAYLOAD_TOO_LARGE"
	CodeInvalidBody       = "INVALID_BODY"
	CodeBadRequest        = "BAD_REQUEST"
	CodeInternal          = "INTERNAL_ERROR"
)

// RateLimitMessage is the error text sent with a rate limit rejection.
const RateLimitMessage = "Too many requests from this IP, please try again later."

// Sentinel errors for request handling.
var (
	// ErrBodyTooLarge indicates that the request body exceeded the configured limit.
	ErrBodyTooLarge = errors.New("request body too large")

	// ErrMalformedBody indicates that the request body could not be decoded.
	ErrMalformedBody = errors.New("malformed request body")
)

// Body is the JSON envelope of every error response.
type Body struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code"`
}

// ClientError is a 4xx error whose body is sent to the caller verbatim.
type ClientError struct {
	Status  int
	Title   string
	Message string
	Code    string
	Cause   error
}

// Error implements the error interface.
func (e *ClientError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("client error %d (%s): %s: %v", e.Status, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("client error %d (%s): %s", e.Status, e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *ClientError) Unwrap() error {
	return e.Cause
}

// Body returns the response envelope for the error.
func (e *ClientError) Body() Body {
	return Body{Error: e.Title, Message: e.Message, Code: e.Code}
}

// NotFound reports a request that matched no route.
func NotFound(method, path string) *ClientError {
	return &ClientError{
		Status:  http.StatusNotFound,
		Title:   "Not Found",
		Message: fmt.Sprintf("Route %s %s not found", method, path),
		Code:    CodeRouteNotFound,
	}
}

// RateLimited reports a request rejected by the admission limiter.
func RateLimited() *ClientError {
	return &ClientError{
		Status: http.StatusTooManyRequests,
		Title:  RateLimitMessage,
		Code:   CodeRateLimitExceeded,
	}
}

// BodyTooLarge reports a request body over the given byte limit.
func BodyTooLarge(limit int64) *ClientError {
	return &ClientError{
		Status:  http.StatusRequestEntityTooLarge,
		Title:   "Payload Too Large",
		Message: fmt.Sprintf("Request body exceeds %d bytes", limit),
		Code:    CodePayloadTooLarge,
		Cause:   ErrBodyTooLarge,
	}
}

// MalformedBody reports a body that could not be decoded.
func MalformedBody(cause error) *ClientError {
	if cause == nil {
		cause = ErrMalformedBody
	} else {
		cause = fmt.Errorf("%w: %w", ErrMalformedBody, cause)
	}
	return &ClientError{
		Status:  http.StatusBadRequest,
		Title:   "Bad Request",
		Message: "Request body could not be parsed",
		Code:    CodeInvalidBody,
		Cause:   cause,
	}
}

// BadRequest reports a generic invalid request.
func BadRequest(message string) *ClientError {
	return &ClientError{
		Status:  http.StatusBadRequest,
		Title:   "Bad Request",
		Message: message,
		Code:    CodeBadRequest,
	}
}

// HandlerFault is an unrecovered error or panic raised by a route handler.
// Its detail is logged server-side and never sent to the client.
type HandlerFault struct {
	Err   error
	Panic any
	Stack []byte
}

// Error implements the error interface.
func (e *HandlerFault) Error() string {
	if e.Panic != nil {
		return fmt.Sprintf("handler panic: %v", e.Panic)
	}
	return fmt.Sprintf("handler fault: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *HandlerFault) Unwrap() error {
	return e.Err
}

// DependencyError is a startup connection failure to a required dependency.
type DependencyError struct {
	Name string
	Err  error
}

// Error implements the error interface.
func (e *DependencyError) Error() string {
	return fmt.Sprintf("dependency %s: %v", e.Name, e.Err)
}

// Unwrap returns the underlying error.
func (e *DependencyError) Unwrap() error {
	return e.Err
}

// ProcessFault is an unrecovered fault outside any request context.
type ProcessFault struct {
	Err   error
	Stack []byte
}

// Error implements the error interface.
func (e *ProcessFault) Error() string {
	return fmt.Sprintf("process fault: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *ProcessFault) Unwrap() error {
	return e.Err
}

// InternalBody is the generic envelope sent for any 5xx response.
var InternalBody = Body{
	Error:   "Internal Server Error",
	Message: "Something went wrong",
	Code:    CodeInternal,
}

// Resolve maps an error to the status code and body sent to the client.
// Client errors keep their own status and body; everything else becomes
// a generic 500.
func Resolve(err error) (int, Body) {
	var ce *ClientError
	if errors.As(err, &ce) {
		return ce.Status, ce.Body()
	}
	return http.StatusInternalServerError, InternalBody
}

// IsClientError reports whether err is a ClientError.
func IsClientError(err error) bool {
	var ce *ClientError
	return errors.As(err, &ce)
}

// IsFatal reports whether err must terminate the process.
func IsFatal(err error) bool {
	var de *DependencyError
	var pf *ProcessFault
	return errors.As(err, &de) || errors.As(err, &pf)
}
