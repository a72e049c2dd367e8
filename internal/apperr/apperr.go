// Package apperr defines the transport-agnostic error kinds used across the
// Parabase server. Every client-visible failure is classified as one of the
// kinds below before it reaches the HTTP layer, which maps kinds 1:1 onto
// status codes and stable machine-readable codes.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for transport mapping and logging.
type Kind int

const (
	// KindInternal is the fallback for unclassified failures.
	KindInternal Kind = iota
	KindBadRequest
	KindUnauthorized
	KindForbidden
	KindNotFound
	KindConflict
	KindTooManyRequests
	// KindCrypto marks envelope encryption/decryption failures. Callers must
	// never fall back to treating the payload as plaintext.
	KindCrypto
	// KindSchema marks references to unknown tables or columns.
	KindSchema
	// KindDenied marks admin SQL rejected by the denylist.
	KindDenied
	KindTimeout
	KindUpstreamObjectStore
	KindUpstreamDatabase
	// KindValidation marks well-formed requests that fail business validation.
	KindValidation
)

// Error is a classified error with an optional structured details payload.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with the given message.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error while preserving it for errors.Is/As.
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches a structured details payload and returns the error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

// BadRequest is shorthand for New(KindBadRequest, message).
func BadRequest(message string) *Error { return New(KindBadRequest, message) }

// BadRequestf is shorthand for Newf(KindBadRequest, ...).
func BadRequestf(format string, args ...any) *Error {
	return Newf(KindBadRequest, format, args...)
}

// NotFound is shorthand for New(KindNotFound, message).
func NotFound(message string) *Error { return New(KindNotFound, message) }

// Unauthorized is shorthand for New(KindUnauthorized, message).
func Unauthorized(message string) *Error { return New(KindUnauthorized, message) }

// Forbidden is shorthand for New(KindForbidden, message).
func Forbidden(message string) *Error { return New(KindForbidden, message) }

// Conflict is shorthand for New(KindConflict, message).
func Conflict(message string) *Error { return New(KindConflict, message) }

// Internal wraps an unexpected failure.
func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Message: "an internal error occurred", Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors report
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// AsError extracts the *Error from a chain, or wraps err as internal.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Code returns the stable machine-readable code for a kind. These strings are
// part of the public API contract and must not change.
func (k Kind) Code() string {
	switch k {
	case KindBadRequest, KindSchema, KindDenied:
		return "BAD_REQUEST"
	case KindUnauthorized:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindTooManyRequests:
		return "TOO_MANY_REQUESTS"
	case KindTimeout:
		return "BAD_REQUEST"
	case KindUpstreamDatabase, KindUpstreamObjectStore:
		return "BAD_REQUEST"
	case KindValidation:
		return "VALIDATION_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// HTTPStatus returns the HTTP status code for a kind.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindBadRequest, KindSchema, KindDenied, KindTimeout,
		KindUpstreamDatabase, KindUpstreamObjectStore:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTooManyRequests:
		return http.StatusTooManyRequests
	case KindValidation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
