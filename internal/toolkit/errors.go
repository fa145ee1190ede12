package toolkit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/observer"
	"github.com/roach88/sqlitekit/internal/value"
)

var (
	// ErrObservationDisabled is returned by Subscribe on a wrapper
	// connected without WithObserver.
	ErrObservationDisabled = errors.New("change observation is not enabled for this database")

	// ErrTransactionAlreadyFinalized is returned when a committed or
	// rolled back session is used again.
	ErrTransactionAlreadyFinalized = errors.New("transaction has already been finalized (committed or rolled back)")

	// ErrInvalidTransactionToken is returned when a session token does
	// not match. The session stays open.
	ErrInvalidTransactionToken = errors.New("invalid transaction token")
)

// MultipleRowsError is returned by FetchOne when the query matched more
// than one row.
type MultipleRowsError struct {
	Count int
}

func (e *MultipleRowsError) Error() string {
	return fmt.Sprintf("fetch one query returned %d rows, expected 0 or 1", e.Count)
}

// RollbackFailedError carries both the statement failure and the failure
// of the rollback that followed it.
type RollbackFailedError struct {
	TransactionErr error
	RollbackErr    error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("transaction failed: %v; rollback also failed: %v", e.TransactionErr, e.RollbackErr)
}

func (e *RollbackFailedError) Unwrap() []error {
	return []error{e.TransactionErr, e.RollbackErr}
}

// TransactionAlreadyActiveError is returned when a database already has an
// interruptible transaction.
type TransactionAlreadyActiveError struct {
	Database string
}

func (e *TransactionAlreadyActiveError) Error() string {
	return "transaction already active for database: " + e.Database
}

// NoActiveTransactionError is returned when no interruptible transaction
// exists for a database.
type NoActiveTransactionError struct {
	Database string
}

func (e *NoActiveTransactionError) Error() string {
	return "no active transaction for database: " + e.Database
}

// ErrorCode returns a stable machine-readable code for err. SQLite engine
// errors map to SQLITE_<extended result code>.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var (
		rollbackErr   *RollbackFailedError
		multiErr      *MultipleRowsError
		activeErr     *TransactionAlreadyActiveError
		noActiveErr   *NoActiveTransactionError
		unsupported   *value.UnsupportedTypeError
		hookErr       *observer.HookRegistrationError
		mismatchErr   *observer.SchemaMismatchError
		aliasErr      *connmgr.InvalidAliasError
		pageSizeErr   *keyset.InvalidPageSizeError
		cursorLenErr  *keyset.CursorLengthMismatchError
		clauseErr     *keyset.DisallowedClauseError
		malformedErr  *keyset.MalformedQueryError
		cursorColErr  *keyset.CursorColumnNotFoundError
		columnNameErr *keyset.InvalidColumnNameError
		sqliteErr     sqlite3.Error
		pathErr       *fs.PathError
	)

	// Composite errors first: they wrap engine errors.
	switch {
	case errors.As(err, &rollbackErr):
		return "TRANSACTION_ROLLBACK_FAILED"
	case errors.Is(err, ErrTransactionAlreadyFinalized):
		return "TRANSACTION_ALREADY_FINALIZED"
	case errors.As(err, &activeErr):
		return "TRANSACTION_ALREADY_ACTIVE"
	case errors.As(err, &noActiveErr):
		return "NO_ACTIVE_TRANSACTION"
	case errors.Is(err, ErrInvalidTransactionToken):
		return "INVALID_TRANSACTION_TOKEN"
	case errors.As(err, &multiErr):
		return "MULTIPLE_ROWS_RETURNED"
	case errors.As(err, &unsupported):
		return "UNSUPPORTED_DATATYPE"
	case errors.Is(err, keyset.ErrEmptyKeyset):
		return "EMPTY_KEYSET_COLUMNS"
	case errors.As(err, &pageSizeErr):
		return "INVALID_PAGE_SIZE"
	case errors.As(err, &cursorLenErr):
		return "CURSOR_LENGTH_MISMATCH"
	case errors.As(err, &clauseErr), errors.As(err, &malformedErr):
		return "INVALID_PAGINATION_QUERY"
	case errors.As(err, &cursorColErr):
		return "CURSOR_COLUMN_NOT_FOUND"
	case errors.As(err, &columnNameErr):
		return "INVALID_COLUMN_NAME"
	case errors.Is(err, keyset.ErrConflictingCursors):
		return "CONFLICTING_CURSORS"
	case errors.Is(err, ErrObservationDisabled),
		errors.As(err, &hookErr),
		errors.As(err, &mismatchErr):
		return "OBSERVER_ERROR"
	case errors.Is(err, connmgr.ErrDatabaseClosed):
		return "DATABASE_CLOSED"
	case errors.Is(err, connmgr.ErrReadWriteAttachOnReader), errors.As(err, &aliasErr):
		return "CONNECTION_ERROR"
	case errors.As(err, &sqliteErr):
		return fmt.Sprintf("SQLITE_%d", int(sqliteErr.ExtendedCode))
	case errors.As(err, &pathErr):
		return "IO_ERROR"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "CANCELLED"
	default:
		return "ERROR"
	}
}
