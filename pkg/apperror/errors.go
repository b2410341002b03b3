package apperror

import (
	"errors"
	"net/http"
)

var (
	ErrValidation        = errors.New("invalid wallet address format")
	ErrInvalidJSON       = errors.New("invalid JSON format")
	ErrRequestTooLarge   = errors.New("request too large")
	ErrUpstreamTransient = errors.New("upstream connection failed")
	ErrUpstreamData      = errors.New("upstream returned an error")
	ErrStoreUnavailable  = errors.New("statistics not available")
	ErrCacheCorruption   = errors.New("cached payload is corrupted")
	ErrNotFound          = errors.New("resource not found")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrConflict          = errors.New("operation already in progress")
	ErrInternal          = errors.New("internal server error")
)

// AppError is a custom error type that can hold an HTTP status code
type AppError struct {
	Code    int
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return http.StatusText(e.Code)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code int, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Wrap attaches a user facing message to one of the sentinel errors. The status
// code is derived from the sentinel.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:    MapErrorToStatus(err),
		Message: message,
		Err:     err,
	}
}

// MapErrorToStatus maps common errors to HTTP status codes
func MapErrorToStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidJSON) {
		return http.StatusBadRequest
	}
	// upstream failures are reported as bad requests, the same way the
	// public checker always surfaced them
	if errors.Is(err, ErrUpstreamTransient) || errors.Is(err, ErrUpstreamData) {
		return http.StatusBadRequest
	}
	if errors.Is(err, ErrRequestTooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrUnauthorized) {
		return http.StatusUnauthorized
	}
	if errors.Is(err, ErrConflict) {
		return http.StatusConflict
	}
	if errors.Is(err, ErrRateLimitExceeded) {
		return http.StatusTooManyRequests
	}
	// Default to internal server error
	return http.StatusInternalServerError
}
