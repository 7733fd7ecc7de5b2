package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and retry policy.
type Kind string

const (
	KindValidation            Kind = "validation"
	KindNotFound              Kind = "notFound"
	KindConflict              Kind = "conflict"
	KindUnauthorized          Kind = "unauthorized"
	KindForbidden             Kind = "forbidden"
	KindRateLimited           Kind = "rateLimited"
	KindDependencyUnavailable Kind = "dependencyUnavailable"
	KindTimeout               Kind = "timeout"
	KindCancelled             Kind = "cancelled"
	KindModelUnhealthy        Kind = "modelUnhealthy"
	KindQueueFull             Kind = "queueFull"
	KindInternal              Kind = "internal"
)

// Error is a classified application error. The domain layer raises kind and
// message; callers may wrap to add context without losing the kind.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), cause: cause}
}

// WithDetails attaches structured details for the error envelope.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// Validation is shorthand for New(KindValidation, ...).
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// NotFound is shorthand for New(KindNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Conflict is shorthand for New(KindConflict, ...).
func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}

// HTTPStatus maps an error kind to its HTTP status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindDependencyUnavailable, KindModelUnhealthy, KindQueueFull:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		// Client went away; 499 is the de-facto convention
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the error may be retried on an idempotent read.
func Retryable(err error) bool {
	return KindOf(err) == KindDependencyUnavailable
}
