package observer

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Recv once the broker is closed and the
// receiver has drained every buffered change.
var ErrClosed = errors.New("observer: broker closed")

// ErrReceiverClosed is returned by Recv after Receiver.Close.
var ErrReceiverClosed = errors.New("observer: receiver closed")

// ErrWithoutRowidCapture is wrapped by the HookRegistrationError returned
// when a WITHOUT ROWID table is observed in a build without the
// sqlite_preupdate_hook tag. SQLite's update hook never fires for such
// tables, so their changes would be lost.
var ErrWithoutRowidCapture = errors.New("observer: WITHOUT ROWID tables need the sqlite_preupdate_hook build tag")

// HookRegistrationError reports a failure installing or removing native
// callbacks on the write connection.
type HookRegistrationError struct {
	Op  string // "register" or "unregister"
	Err error
}

func (e *HookRegistrationError) Error() string {
	return fmt.Sprintf("failed to %s change hooks: %v", e.Op, e.Err)
}

func (e *HookRegistrationError) Unwrap() error {
	return e.Err
}

// SchemaMismatchError reports captured values that do not cover a table's
// primary key.
type SchemaMismatchError struct {
	Table    string
	Expected int // column index the key needs
	Actual   int // captured column count
}

func (e *SchemaMismatchError) Error() string {
	return fmt.Sprintf("table %s: primary key needs column %d but only %d columns were captured",
		e.Table, e.Expected, e.Actual)
}
