package connmgr

import (
	"errors"
	"fmt"
)

// ErrDatabaseClosed is returned by every operation after Close or Remove.
var ErrDatabaseClosed = errors.New("database has been closed")

// ErrReadWriteAttachOnReader is returned when a read connection is asked
// to attach a database in ReadWrite mode.
var ErrReadWriteAttachOnReader = errors.New("read-write attachment requires a write connection")

// InvalidAliasError reports an attachment alias that is not a plain identifier.
type InvalidAliasError struct {
	Alias string
}

func (e *InvalidAliasError) Error() string {
	return fmt.Sprintf("invalid attachment alias %q: must match [A-Za-z_][A-Za-z0-9_]* and not be main or temp", e.Alias)
}
