// Package apperr defines the error kinds shared by the gateways and the HTTP
// status each one maps to.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrAuth indicates a missing, malformed or invalid bearer token
	ErrAuth = errors.New("authentication failed")
	// ErrValidation indicates a request is missing required fields
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a message, draft or job does not exist
	ErrNotFound = errors.New("not found")
	// ErrNotAuthenticated indicates no usable delegated mail credential is stored
	ErrNotAuthenticated = errors.New("not authenticated with Gmail")
	// ErrUpstream indicates a provider call failed or timed out
	ErrUpstream = errors.New("upstream service error")
	// ErrServiceUnavailable indicates a backend could not be reached or is not configured
	ErrServiceUnavailable = errors.New("service unavailable")
	// ErrUnsupportedFormat indicates audio could not be decoded under any container guess
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrUnintelligible indicates a speech engine produced no text
	ErrUnintelligible = errors.New("could not understand audio")
	// ErrAllMethodsFailed indicates every transcription engine failed
	ErrAllMethodsFailed = errors.New("all transcription methods failed")
)

// Validation returns an ErrValidation carrying a caller-facing message
func Validation(format string, args ...any) error {
	return &kindError{kind: ErrValidation, msg: fmt.Sprintf(format, args...)}
}

// Upstream wraps a provider failure. Context deadlines are folded in so a
// timed out call still reports as ErrUpstream.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &kindError{kind: ErrUpstream, msg: op + ": timed out", cause: err}
	}
	return &kindError{kind: ErrUpstream, msg: op, cause: err}
}

type kindError struct {
	kind  error
	msg   string
	cause error
}

func (e *kindError) Error() string {
	if e.cause != nil {
		return e.msg + ": " + e.cause.Error()
	}
	return e.msg
}

func (e *kindError) Is(target error) bool { return target == e.kind }

func (e *kindError) Unwrap() error { return e.cause }

// StatusCode maps an error to its HTTP status
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrAuth), errors.Is(err, ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text safe to place in a response body. Client
// errors carry their own message; server errors collapse to the kind.
func PublicMessage(err error) string {
	if err == nil {
		return ""
	}
	if StatusCode(err) < http.StatusInternalServerError {
		var ke *kindError
		if errors.As(err, &ke) {
			return ke.msg
		}
		for _, kind := range []error{ErrNotAuthenticated, ErrAuth} {
			if errors.Is(err, kind) {
				return kind.Error()
			}
		}
		return err.Error()
	}
	for _, kind := range []error{ErrAllMethodsFailed, ErrUnsupportedFormat, ErrUnintelligible, ErrServiceUnavailable, ErrUpstream} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return "internal server error"
}
