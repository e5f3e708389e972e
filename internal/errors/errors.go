// Package errors provides the coded error taxonomy shared by the sync layer,
// the store backends and the shelfd API.
//
// Usage:
//
//	// In the slot model - reject before any state changes
//	if holdsFrame {
//	    return errors.ConstraintViolation("only one photo frame per shelf")
//	}
//
//	// At the gateway boundary - wrap driver failures
//	return errors.Unavailable("fetch shelves").WithCause(err)
//
//	// Anywhere - check by code
//	if errors.Is(err, errors.ErrNotFound) {
//	    ...
//	}
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the application.
const (
	CodeNotFound            Code = "NOT_FOUND"
	CodeValidation          Code = "VALIDATION"
	CodeConflict            Code = "CONFLICT"
	CodeForbidden           Code = "FORBIDDEN"
	CodeConstraintViolation Code = "CONSTRAINT_VIOLATION"
	CodeUnavailable         Code = "REMOTE_UNAVAILABLE"
	CodeRateLimited         Code = "RATE_LIMITED"
	CodeClosed              Code = "CLOSED"
	CodeInternal            Code = "INTERNAL"
)

// HTTPStatus returns the appropriate HTTP status code for an error code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConstraintViolation:
		return http.StatusUnprocessableEntity
	case CodeUnavailable, CodeClosed:
		return http.StatusServiceUnavailable
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// CodeFromStatus maps an HTTP status back to a code. Used by clients of the
// shelfd API so remote failures keep their meaning on this side of the wire.
func CodeFromStatus(status int) Code {
	switch status {
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusConflict:
		return CodeConflict
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusBadRequest:
		return CodeValidation
	case http.StatusUnprocessableEntity:
		return CodeConstraintViolation
	case http.StatusTooManyRequests:
		return CodeRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		return CodeUnavailable
	default:
		return CodeInternal
	}
}

// Error is a domain error with a code, message, and optional details.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// HTTPStatus returns the HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Code.HTTPStatus()
}

// WithDetails returns a new error with additional details.
func (e *Error) WithDetails(details any) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		cause:   e.cause,
	}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound            = &Error{Code: CodeNotFound, Message: "not found"}
	ErrValidation          = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict            = &Error{Code: CodeConflict, Message: "conflict"}
	ErrForbidden           = &Error{Code: CodeForbidden, Message: "forbidden"}
	ErrConstraintViolation = &Error{Code: CodeConstraintViolation, Message: "constraint violation"}
	ErrUnavailable         = &Error{Code: CodeUnavailable, Message: "remote unavailable"}
	ErrRateLimited         = &Error{Code: CodeRateLimited, Message: "rate limited"}
	ErrClosed              = &Error{Code: CodeClosed, Message: "closed"}
	ErrInternal            = &Error{Code: CodeInternal, Message: "internal error"}
)

// CodeOf returns the code carried by err, or CodeInternal when err is not a
// domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// ValidationWithDetails creates a validation error with details.
func ValidationWithDetails(msg string, details any) *Error {
	return &Error{Code: CodeValidation, Message: msg, Details: details}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Conflictf creates a conflict error with formatted message.
func Conflictf(format string, args ...any) *Error {
	return &Error{Code: CodeConflict, Message: fmt.Sprintf(format, args...)}
}

// Forbidden creates an error for a command the principal may not run.
func Forbidden(msg string) *Error {
	return &Error{Code: CodeForbidden, Message: msg}
}

// ConstraintViolation creates an error for a local rule that rejected a
// command before it touched any state.
func ConstraintViolation(msg string) *Error {
	return &Error{Code: CodeConstraintViolation, Message: msg}
}

// Unavailable creates an error for a failed remote call.
func Unavailable(msg string) *Error {
	return &Error{Code: CodeUnavailable, Message: msg}
}

// Unavailablef creates a remote unavailable error with formatted message.
func Unavailablef(format string, args ...any) *Error {
	return &Error{Code: CodeUnavailable, Message: fmt.Sprintf(format, args...)}
}

// RateLimited creates a rate limited error.
func RateLimited(msg string) *Error {
	return &Error{Code: CodeRateLimited, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
