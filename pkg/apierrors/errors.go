// Package apierrors defines the error kinds surfaced to API callers.
//
// Every expected failure (missing identity, insufficient role, association
// pairing violations, license gating) is returned as an *Error carrying a Kind,
// so the HTTP layer can render a specific message instead of a generic one.
// Anything that is not an *Error is treated as an unexpected internal failure.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies a class of caller-visible failure
type Kind string

const (
	KindUnauthenticated   Kind = "unauthenticated"
	KindForbidden         Kind = "forbidden"
	KindNotFound          Kind = "not_found"
	KindInvalidInput      Kind = "invalid_input"
	KindInvalidPair       Kind = "invalid_pair"
	KindInvalidParentType Kind = "invalid_parent_type"
	KindInvalidChildType  Kind = "invalid_child_type"
	KindDuplicate         Kind = "duplicate"
	KindCircular          Kind = "circular"
	KindNoActiveLicense   Kind = "no_active_license"
	KindLicenseExhausted  Kind = "license_exhausted"
	KindLicenseExpired    Kind = "license_expired"
	KindInternal          Kind = "internal"
)

// Error is a structured, caller-visible error
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause
func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf creates an error of the given kind with a formatted message
func Newf(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error
func Wrap(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of err, or KindInternal when err carries none
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return Is(err, KindNotFound)
}

// IsForbidden reports whether err is a forbidden error
func IsForbidden(err error) bool {
	return Is(err, KindForbidden)
}

// IsLicenseDenial reports whether err is one of the report-creation gating failures
func IsLicenseDenial(err error) bool {
	switch KindOf(err) {
	case KindNoActiveLicense, KindLicenseExhausted, KindLicenseExpired:
		return true
	}
	return false
}

// HTTPStatus maps a kind to its HTTP status code
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindForbidden, KindNoActiveLicense, KindLicenseExhausted, KindLicenseExpired:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput, KindInvalidPair, KindInvalidParentType, KindInvalidChildType:
		return http.StatusBadRequest
	case KindDuplicate, KindCircular:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the message safe to show to a caller.
// Internal errors never leak their cause.
func PublicMessage(err error) string {
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Kind != KindInternal {
		return apiErr.Message
	}
	return "internal server error"
}
