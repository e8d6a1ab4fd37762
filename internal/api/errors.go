// Package api provides an HTTP client for the wellness backend with
// rate limiting and error classification. The client performs exactly one
// attempt per call; retry policy belongs to the sync engine, which owns
// the durable queue and its backoff schedule.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Sentinel errors for failure classification.
// Use errors.Is(err, api.ErrThrottled) to check.
var (
	ErrValidation   = errors.New("api: validation rejected")
	ErrUnauthorized = errors.New("api: unauthorized")
	ErrForbidden    = errors.New("api: forbidden")
	ErrNotFound     = errors.New("api: not found")
	ErrConflict     = errors.New("api: conflict")
	ErrThrottled    = errors.New("api: throttled")
	ErrServer       = errors.New("api: server error")
	ErrNetwork      = errors.New("api: network unreachable")
)

// Error wraps a sentinel error with HTTP status code, request ID, and the
// response body for debugging. RetryAfter is non-zero when the server
// supplied a Retry-After header.
type Error struct {
	StatusCode int
	RequestID  string
	Message    string
	RetryAfter time.Duration
	Err        error // sentinel, for errors.Is()
}

func (e *Error) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("api: HTTP %d (request-id: %s): %s", e.StatusCode, e.RequestID, e.Message)
	}

	return fmt.Sprintf("api: HTTP %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
// Validation and authorization failures are permanent; the engine must
// not burn retry budget on them.
func Retryable(err error) bool {
	switch {
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrConflict):
		return false
	default:
		return true
	}
}

// classifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func classifyStatus(code int) error {
	switch code {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusTooManyRequests:
		return ErrThrottled
	default:
		if code >= http.StatusInternalServerError {
			return ErrServer
		}

		return nil
	}
}
