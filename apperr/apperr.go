// Package apperr holds the error taxonomy shared by the verification
// pipeline and its HTTP surface.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error by how it should propagate.
type Kind string

const (
	// ConnectionError means the graph database is unreachable or misconfigured.
	ConnectionError Kind = "connection_error"
	// ExternalServiceError means the fingerprint/analysis service failed or
	// answered with something unusable.
	ExternalServiceError Kind = "external_service_error"
	// ValidationError means the request was rejected before any I/O.
	ValidationError Kind = "validation_error"
	// ContentVerificationError means stored graph state is inconsistent.
	ContentVerificationError Kind = "content_verification_error"
	// QueryError is any other graph query failure.
	QueryError Kind = "query_error"

	RateLimitError Kind = "rate_limit_error"
	NotFoundError  Kind = "not_found"
	InternalError  Kind = "internal_error"
)

// Error is the concrete error type carried through the pipeline.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap builds an Error of the given kind around err.
func Wrap(kind Kind, op string, err error, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Err: err}
}

// Validation is shorthand for a ValidationError with a formatted message.
func Validation(op, format string, args ...any) *Error {
	return &Error{Kind: ValidationError, Op: op, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the Kind of the first *Error in err's chain, or
// InternalError when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return InternalError
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == kind
}

// HTTPStatus maps an error to the status code returned to clients.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case ValidationError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case RateLimitError:
		return http.StatusTooManyRequests
	case ExternalServiceError:
		return http.StatusBadGateway
	case ConnectionError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns text safe to show an end user. Wrapped causes are
// never included.
func PublicMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case ValidationError, NotFoundError:
			if e.Message != "" {
				return e.Message
			}
		case RateLimitError:
			return "Rate limit exceeded"
		case ExternalServiceError:
			return "Verification service unavailable"
		case ConnectionError:
			return "Verification database unavailable"
		case ContentVerificationError:
			return "Stored verification data is inconsistent"
		}
	}
	return "Internal server error"
}
