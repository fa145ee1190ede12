package connmgr

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"log/slog"
	"sync"

	"github.com/mattn/go-sqlite3"
)

var errBadConn = driver.ErrBadConn

// WriteGuard is exclusive ownership of a database's write connection.
// Only one WriteGuard per Database exists at a time.
//
// Release must be called on every path, typically with defer. A
// transaction left open by the holder is rolled back on Release.
type WriteGuard struct {
	conn   *sql.Conn
	logger *slog.Logger

	once       sync.Once
	releaseErr error
}

func newWriteGuard(conn *sql.Conn, logger *slog.Logger) *WriteGuard {
	return &WriteGuard{conn: conn, logger: logger}
}

// Conn returns the underlying connection. It must not be used after Release.
func (g *WriteGuard) Conn() *sql.Conn {
	return g.conn
}

// ExecContext executes a statement on the write connection.
func (g *WriteGuard) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return g.conn.ExecContext(ctx, query, args...)
}

// QueryContext runs a query on the write connection.
func (g *WriteGuard) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return g.conn.QueryContext(ctx, query, args...)
}

// QueryRowContext runs a single-row query on the write connection.
func (g *WriteGuard) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return g.conn.QueryRowContext(ctx, query, args...)
}

// Raw runs fn with the native driver connection. Native hooks are
// registered this way.
func (g *WriteGuard) Raw(fn func(*sqlite3.SQLiteConn) error) error {
	return rawSQLite(g.conn, fn)
}

// InTransaction reports whether the connection has an open transaction.
func (g *WriteGuard) InTransaction() (bool, error) {
	var inTx bool
	err := g.Raw(func(c *sqlite3.SQLiteConn) error {
		inTx = !c.AutoCommit()
		return nil
	})
	return inTx, err
}

// Release returns the write connection to its pool. An open transaction
// is rolled back first; if that fails the connection is discarded so the
// next writer starts clean. Release is idempotent.
func (g *WriteGuard) Release() error {
	g.once.Do(func() {
		g.releaseErr = g.release()
	})
	return g.releaseErr
}

// discard drops the connection without rollback and marks the guard released.
func (g *WriteGuard) discard() {
	g.once.Do(func() {
		discard(g.conn)
	})
}

func (g *WriteGuard) release() error {
	inTx, err := g.InTransaction()
	if err != nil {
		g.logger.Warn("write connection state unknown, discarding", "error", err)
		discard(g.conn)
		return nil
	}
	if inTx {
		if _, err := g.conn.ExecContext(context.Background(), "ROLLBACK"); err != nil {
			g.logger.Warn("rollback on release failed, discarding connection", "error", err)
			discard(g.conn)
			return nil
		}
		g.logger.Debug("rolled back open transaction on release")
	}
	return g.conn.Close()
}
