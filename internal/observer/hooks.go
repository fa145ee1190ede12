package observer

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlitekit/internal/schema"
	"github.com/roach88/sqlitekit/internal/value"
)

// capturedChange is what a change callback reports before the key is
// worked out.
type capturedChange struct {
	table string
	op    Operation
	rowid int64

	// hasValues is false in rowid-only capture mode.
	hasValues bool
	old       []value.Value
	new       []value.Value

	// rawOld and rawNew hold driver values until decode runs.
	rawOld []any
	rawNew []any
}

// decode converts the raw images. The driver reports TEXT and BLOB values
// alike as []byte, so the column's declared affinity picks the class;
// without a layout, valid UTF-8 is taken as text.
func (c *capturedChange) decode(info *schema.TableInfo) error {
	var err error
	if c.rawOld != nil {
		if c.old, err = decodeImage(c.rawOld, info); err != nil {
			return err
		}
	}
	if c.rawNew != nil {
		if c.new, err = decodeImage(c.rawNew, info); err != nil {
			return err
		}
	}
	c.rawOld, c.rawNew = nil, nil
	return nil
}

func decodeImage(raw []any, info *schema.TableInfo) ([]value.Value, error) {
	vals := make([]value.Value, len(raw))
	for i, r := range raw {
		if b, ok := r.([]byte); ok {
			vals[i] = bytesValue(b, i, info)
			continue
		}
		v, err := value.FromDriver(r)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		vals[i] = v
	}
	return vals, nil
}

// bytesValue classifies a []byte column value. A column with no declared
// type has BLOB affinity but stores text as TEXT, so it gets the same
// UTF-8 rule as a table without a layout.
func bytesValue(b []byte, col int, info *schema.TableInfo) value.Value {
	if info == nil || undeclared(info, col) {
		if utf8.Valid(b) {
			return value.Text(b)
		}
		return value.Blob(bytes.Clone(b))
	}
	if info.ColumnAffinity(col) == schema.AffinityBlob {
		return value.Blob(bytes.Clone(b))
	}
	return value.Text(b)
}

func undeclared(info *schema.TableInfo, col int) bool {
	return col >= len(info.Types) || strings.TrimSpace(info.Types[col]) == ""
}

func operationFromCode(code int) (Operation, bool) {
	switch code {
	case sqlite3.SQLITE_INSERT:
		return Insert, true
	case sqlite3.SQLITE_UPDATE:
		return Update, true
	case sqlite3.SQLITE_DELETE:
		return Delete, true
	default:
		return 0, false
	}
}

// buildChange turns a capture into a TableChange using the table's
// cached layout. A nil info yields an unresolved change. The returned
// error is a *SchemaMismatchError when the captured image is too short
// for the key; the change is still usable, just unresolved.
func buildChange(c capturedChange, info *schema.TableInfo, captureValues bool, now time.Time) (TableChange, error) {
	ch := TableChange{
		Table:      c.table,
		Operation:  c.op,
		PrimaryKey: []value.Value{},
		Timestamp:  now,
	}
	if captureValues && c.hasValues {
		ch.OldValues = c.old
		ch.NewValues = c.new
	}

	if info == nil {
		rowid := c.rowid
		ch.Rowid = &rowid
		return ch, nil
	}

	if !info.WithoutRowid {
		rowid := c.rowid
		ch.Rowid = &rowid
		if info.IntegerPK || len(info.PKColumns) == 0 {
			ch.PrimaryKey = []value.Value{value.Integer(rowid)}
			ch.KeyResolved = true
			return ch, nil
		}
	}

	if !c.hasValues {
		return ch, nil
	}
	image := c.new
	if c.op == Delete {
		image = c.old
	}
	key := make([]value.Value, 0, len(info.PKColumns))
	for _, idx := range info.PKColumns {
		if idx >= len(image) {
			return ch, &SchemaMismatchError{Table: c.table, Expected: idx + 1, Actual: len(image)}
		}
		key = append(key, image[idx])
	}
	ch.PrimaryKey = key
	ch.KeyResolved = true
	return ch, nil
}

// hookAdapter buffers changes for one registration on one connection.
//
// SQLite undoes a failed statement, and ROLLBACK TO a savepoint, without
// calling the rollback hook. The adapter therefore records the buffer
// length before each statement and at each savepoint, and truncates back
// to it when those writes are undone.
type hookAdapter struct {
	broker *Broker

	mu         sync.Mutex
	pending    []TableChange
	savepoints []savepointMark
}

type savepointMark struct {
	name string
	mark int
}

func newHookAdapter(b *Broker) *hookAdapter {
	return &hookAdapter{broker: b}
}

// mark returns the current buffer position.
func (h *hookAdapter) mark() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// truncate drops changes buffered after mark. A commit or rollback since
// the mark already emptied the buffer, which leaves nothing to drop.
func (h *hookAdapter) truncate(mark int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.truncateLocked(mark)
}

func (h *hookAdapter) truncateLocked(mark int) {
	if mark < len(h.pending) {
		clear(h.pending[mark:])
		h.pending = h.pending[:mark]
	}
}

// savepointIdent matches a quoted or bare savepoint name.
const savepointIdent = `("(?:[^"]|"")*"|\[[^\]]*\]|'(?:[^']|'')*'|` + "`(?:[^`]|``)*`" + `|[^\s;]+)`

var (
	savepointStmt  = regexp.MustCompile(`(?i)^\s*SAVEPOINT\s+` + savepointIdent + `\s*;?\s*$`)
	rollbackToStmt = regexp.MustCompile(`(?i)^\s*ROLLBACK(?:\s+TRANSACTION)?\s+TO(?:\s+SAVEPOINT)?\s+` + savepointIdent + `\s*;?\s*$`)
	releaseStmt    = regexp.MustCompile(`(?i)^\s*RELEASE(?:\s+SAVEPOINT)?\s+` + savepointIdent + `\s*;?\s*$`)
)

// track follows the savepoint statements that succeeded on the connection.
func (h *hookAdapter) track(query string, before int) {
	if m := savepointStmt.FindStringSubmatch(query); m != nil {
		h.mu.Lock()
		h.savepoints = append(h.savepoints, savepointMark{name: savepointName(m[1]), mark: before})
		h.mu.Unlock()
		return
	}
	if m := rollbackToStmt.FindStringSubmatch(query); m != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		// ROLLBACK TO keeps the savepoint itself open.
		if i := h.findSavepoint(savepointName(m[1])); i >= 0 {
			h.truncateLocked(h.savepoints[i].mark)
			h.savepoints = h.savepoints[:i+1]
		}
		return
	}
	if m := releaseStmt.FindStringSubmatch(query); m != nil {
		h.mu.Lock()
		defer h.mu.Unlock()
		if i := h.findSavepoint(savepointName(m[1])); i >= 0 {
			h.savepoints = h.savepoints[:i]
		}
	}
}

// findSavepoint returns the innermost savepoint called name, or -1.
func (h *hookAdapter) findSavepoint(name string) int {
	for i := len(h.savepoints) - 1; i >= 0; i-- {
		if strings.EqualFold(h.savepoints[i].name, name) {
			return i
		}
	}
	return -1
}

func savepointName(s string) string {
	if len(s) >= 2 {
		switch q := s[0]; q {
		case '"', '`', '\'':
			if s[len(s)-1] == q {
				return strings.ReplaceAll(s[1:len(s)-1], string([]byte{q, q}), string([]byte{q}))
			}
		case '[':
			if s[len(s)-1] == ']' {
				return s[1 : len(s)-1]
			}
		}
	}
	return s
}

func (h *hookAdapter) capture(c capturedChange) {
	info, _ := h.broker.TableInfo(c.table)
	if c.hasValues {
		if err := c.decode(info); err != nil {
			h.broker.logger.Warn("decoding captured values failed", "table", c.table, "error", err)
			c.hasValues = false
			c.old, c.new = nil, nil
		}
	}
	ch, err := buildChange(c, info, h.broker.captureValues, h.broker.now())
	if err != nil {
		h.broker.logger.Warn("change key unavailable", "table", c.table, "error", err)
	} else if !ch.KeyResolved {
		h.broker.logger.Debug("change emitted without key", "table", c.table, "operation", c.op)
	}
	h.mu.Lock()
	h.pending = append(h.pending, ch)
	h.mu.Unlock()
}

// onCommit publishes the buffer. Returning non-zero would turn the commit
// into a rollback.
func (h *hookAdapter) onCommit() int {
	h.mu.Lock()
	changes := h.pending
	h.pending = nil
	h.savepoints = nil
	h.mu.Unlock()
	h.broker.publish(changes)
	return 0
}

func (h *hookAdapter) onRollback() {
	h.discard()
}

func (h *hookAdapter) discard() {
	h.mu.Lock()
	h.pending = nil
	h.savepoints = nil
	h.mu.Unlock()
}

// install registers all three callbacks on conn.
func (h *hookAdapter) install(conn *sqlite3.SQLiteConn) {
	registerCapture(conn, h)
	conn.RegisterCommitHook(h.onCommit)
	conn.RegisterRollbackHook(h.onRollback)
}

// uninstall removes all three callbacks from conn.
func uninstall(conn *sqlite3.SQLiteConn) {
	unregisterCapture(conn)
	conn.RegisterCommitHook(nil)
	conn.RegisterRollbackHook(nil)
}
