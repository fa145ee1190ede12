//go:build sqlite_preupdate_hook

package observer

import (
	"github.com/mattn/go-sqlite3"
)

// CapturesValues reports whether this build records column values.
const CapturesValues = true

func registerCapture(conn *sqlite3.SQLiteConn, h *hookAdapter) {
	conn.RegisterPreUpdateHook(func(d sqlite3.SQLitePreUpdateData) {
		if d.DatabaseName != "main" || !h.broker.IsObserved(d.TableName) {
			return
		}
		op, ok := operationFromCode(d.Op)
		if !ok {
			return
		}
		c := capturedChange{table: d.TableName, op: op, rowid: d.NewRowID, hasValues: true}
		if op == Delete {
			c.rowid = d.OldRowID
		}

		n := d.Count()
		var err error
		if op != Insert {
			if c.rawOld, err = readImage(n, d.Old); err != nil {
				h.broker.logger.Warn("reading pre-image failed", "table", d.TableName, "error", err)
				c.hasValues = false
			}
		}
		if op != Delete && c.hasValues {
			if c.rawNew, err = readImage(n, d.New); err != nil {
				h.broker.logger.Warn("reading post-image failed", "table", d.TableName, "error", err)
				c.hasValues = false
			}
		}
		if !c.hasValues {
			c.rawOld, c.rawNew = nil, nil
		}
		h.capture(c)
	})
}

func unregisterCapture(conn *sqlite3.SQLiteConn) {
	conn.RegisterPreUpdateHook(nil)
}

// readImage reads n raw column values with read, which is d.Old or d.New.
// The driver assigns each value into its dest slot, so the slots are the
// values and no pointers are passed.
func readImage(n int, read func(dest ...any) error) ([]any, error) {
	raw := make([]any, n)
	if err := read(raw...); err != nil {
		return nil, err
	}
	return raw, nil
}
