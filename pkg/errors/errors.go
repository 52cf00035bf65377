// Package errors defines the sentinel errors used by the ingestion
// pipeline, plus the mapping from errors to HTTP status codes used by the
// ingest surface.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrQueueFull    = errors.New("queue full")
	ErrCorruptBatch = errors.New("corrupt batch file")
	ErrInvalidInput = errors.New("invalid input")
	ErrSinkFailed   = errors.New("sink delivery failed")
	ErrTimeout      = errors.New("operation timed out")
	ErrInternal     = errors.New("internal error")
)

// AppError wraps a sentinel error with a message and an HTTP status code
// chosen at the call site.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// HTTPStatusCode maps an error to the status code the ingest surface
// should respond with.
func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrQueueFull):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrCorruptBatch):
		return http.StatusBadRequest
	case errors.Is(err, ErrTimeout), errors.Is(err, ErrSinkFailed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
