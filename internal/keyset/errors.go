package keyset

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyKeyset is returned when no keyset columns are given.
	ErrEmptyKeyset = errors.New("keyset must contain at least one column")

	// ErrConflictingCursors is returned when both After and Before are set.
	ErrConflictingCursors = errors.New("cannot paginate both after and before a cursor")
)

// InvalidPageSizeError reports a page size below 1.
type InvalidPageSizeError struct {
	Size int
}

func (e *InvalidPageSizeError) Error() string {
	return fmt.Sprintf("page size must be greater than zero, got %d", e.Size)
}

// CursorLengthMismatchError reports a cursor whose arity differs from the keyset.
type CursorLengthMismatchError struct {
	Expected int
	Actual   int
}

func (e *CursorLengthMismatchError) Error() string {
	return fmt.Sprintf("cursor has %d values but keyset has %d columns", e.Actual, e.Expected)
}

// InvalidColumnNameError reports a keyset column name that is not a plain
// (optionally dotted) identifier.
type InvalidColumnNameError struct {
	Name string
}

func (e *InvalidColumnNameError) Error() string {
	return fmt.Sprintf("invalid keyset column name %q", e.Name)
}

// DisallowedClauseError reports a top-level ORDER BY or LIMIT in the base query.
type DisallowedClauseError struct {
	Clause string
}

func (e *DisallowedClauseError) Error() string {
	return fmt.Sprintf("base query must not contain a top-level %s; the keyset defines ordering and page size", e.Clause)
}

// MalformedQueryError reports an unterminated string, identifier or comment.
type MalformedQueryError struct {
	Reason string
}

func (e *MalformedQueryError) Error() string {
	return "malformed base query: " + e.Reason
}

// CursorColumnNotFoundError reports a keyset column missing from the
// result rows, so no cursor can be built.
type CursorColumnNotFoundError struct {
	Column string
}

func (e *CursorColumnNotFoundError) Error() string {
	return fmt.Sprintf("keyset column %q not found in result columns", e.Column)
}
