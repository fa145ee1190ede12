//go:build !sqlite_preupdate_hook

package observer

import (
	"github.com/mattn/go-sqlite3"
)

// CapturesValues reports whether this build records column values.
const CapturesValues = false

func registerCapture(conn *sqlite3.SQLiteConn, h *hookAdapter) {
	conn.RegisterUpdateHook(func(code int, database, table string, rowid int64) {
		if database != "main" || !h.broker.IsObserved(table) {
			return
		}
		op, ok := operationFromCode(code)
		if !ok {
			return
		}
		h.capture(capturedChange{table: table, op: op, rowid: rowid})
	})
}

func unregisterCapture(conn *sqlite3.SQLiteConn) {
	conn.RegisterUpdateHook(nil)
}
