package store

import (
	"fmt"

	domainerrors "github.com/cryptoshelf/shelfsync/internal/errors"
)

// Sentinel errors shared by every backend. They are domain errors so the
// API can map them to status codes directly.
var (
	ErrNotFound      = domainerrors.ErrNotFound
	ErrConflict      = domainerrors.ErrConflict
	ErrInvalidInput  = domainerrors.ErrValidation
	ErrUnavailable   = domainerrors.ErrUnavailable
	ErrClosed        = domainerrors.ErrClosed
	ErrUnknownTable  = domainerrors.Validation("unknown table")
	ErrEmptyFilter   = domainerrors.Validation("filter must not be empty")
)

// NotFound builds the error FetchOne returns on a miss.
func NotFound(table Table, filter Filter) error {
	return domainerrors.NotFoundf("%s %v not found", table, map[string]any(filter))
}

// Conflict wraps a driver uniqueness failure.
func Conflict(table Table, cause error) error {
	return domainerrors.Conflictf("%s: unique key violated", table).WithCause(cause)
}

// Unavailable wraps a driver or transport failure.
func Unavailable(op string, table Table, cause error) error {
	return domainerrors.Unavailablef("%s %s", op, table).WithCause(cause)
}

func invalid(format string, args ...any) error {
	return domainerrors.Validation(fmt.Sprintf(format, args...))
}
