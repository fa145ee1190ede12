package connmgr

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/sqlitekit/internal/metrics"
)

const driverName = "sqlite3"

// Database is a connection manager for one SQLite file.
// Safe for concurrent use.
type Database struct {
	path      string
	readPool  *sql.DB
	writePool *sql.DB
	cfg       Config
	logger    *slog.Logger

	walEnabled atomic.Bool
	closed     atomic.Bool
}

// Connect opens (creating if needed) the database at path and prepares
// both pools. Parent directories are created. A nil cfg uses DefaultConfig.
//
// Both pools are pinged before Connect returns, so a path that cannot be
// opened fails here rather than on first use.
func Connect(ctx context.Context, path string, cfg *Config) (*Database, error) {
	c := DefaultConfig()
	if cfg != nil {
		c = *cfg
	}
	c = c.withDefaults()

	if path == "" {
		return nil, errors.New("database path must not be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve database path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open the writer first so the file exists before query-only readers
	// attach to it.
	writePool, err := sql.Open(driverName, writeDSN(abs, c))
	if err != nil {
		return nil, fmt.Errorf("open write pool: %w", err)
	}
	writePool.SetMaxOpenConns(1)
	writePool.SetMaxIdleConns(1)
	writePool.SetConnMaxIdleTime(c.IdleTimeout)
	if err := writePool.PingContext(ctx); err != nil {
		writePool.Close()
		return nil, fmt.Errorf("connect write pool: %w", err)
	}

	readPool, err := sql.Open(driverName, readDSN(abs, c))
	if err != nil {
		writePool.Close()
		return nil, fmt.Errorf("open read pool: %w", err)
	}
	readPool.SetMaxOpenConns(c.MaxReadConnections)
	readPool.SetMaxIdleConns(c.MaxReadConnections)
	readPool.SetConnMaxIdleTime(c.IdleTimeout)
	if err := readPool.PingContext(ctx); err != nil {
		readPool.Close()
		writePool.Close()
		return nil, fmt.Errorf("connect read pool: %w", err)
	}

	c.Logger.Debug("database connected",
		"path", abs,
		"max_read_connections", c.MaxReadConnections,
		"idle_timeout", c.IdleTimeout,
	)

	return &Database{
		path:      abs,
		readPool:  readPool,
		writePool: writePool,
		cfg:       c,
		logger:    c.Logger,
	}, nil
}

func writeDSN(path string, c Config) string {
	return path + "?_busy_timeout=" + strconv.FormatInt(c.BusyTimeout.Milliseconds(), 10)
}

func readDSN(path string, c Config) string {
	return writeDSN(path, c) + "&_query_only=1"
}

// Path returns the absolute path of the database file.
func (db *Database) Path() string {
	return db.path
}

// Config returns the effective configuration.
func (db *Database) Config() Config {
	return db.cfg
}

// Logger returns the logger the database was configured with.
func (db *Database) Logger() *slog.Logger {
	return db.logger
}

// IsClosed reports whether Close or Remove has been called.
func (db *Database) IsClosed() bool {
	return db.closed.Load()
}

// ReadPool returns the query-only pool for concurrent reads.
func (db *Database) ReadPool() (*sql.DB, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}
	return db.readPool, nil
}

// AcquireWriter waits for the single write connection and returns it as
// a WriteGuard. Callers must Release the guard. The first successful call
// switches the database to WAL journal mode.
//
// Cancelling ctx while waiting returns ctx's error and holds nothing.
func (db *Database) AcquireWriter(ctx context.Context) (*WriteGuard, error) {
	if db.closed.Load() {
		return nil, ErrDatabaseClosed
	}

	start := time.Now()
	conn, err := db.writePool.Conn(ctx)
	metrics.WriterWaitSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.WriterAcquiredTotal.WithLabelValues(metrics.Fail).Inc()
		if db.closed.Load() {
			return nil, ErrDatabaseClosed
		}
		return nil, fmt.Errorf("acquire writer: %w", err)
	}

	if err := db.ensureWAL(ctx, conn); err != nil {
		metrics.WriterAcquiredTotal.WithLabelValues(metrics.Fail).Inc()
		conn.Close()
		return nil, err
	}

	metrics.WriterAcquiredTotal.WithLabelValues(metrics.Ok).Inc()
	return newWriteGuard(conn, db.logger), nil
}

// ensureWAL switches to WAL mode once. The flag is cleared on failure so
// the next writer retries.
func (db *Database) ensureWAL(ctx context.Context, conn *sql.Conn) error {
	if !db.walEnabled.CompareAndSwap(false, true) {
		return nil
	}
	var mode string
	if err := conn.QueryRowContext(ctx, "PRAGMA journal_mode = WAL").Scan(&mode); err != nil {
		db.walEnabled.Store(false)
		return fmt.Errorf("enable WAL journal mode: %w", err)
	}
	db.logger.Debug("journal mode set", "path", db.path, "mode", mode)
	return nil
}

// Close closes both pools. Subsequent operations return ErrDatabaseClosed.
// Calling Close again is a no-op.
func (db *Database) Close() error {
	if !db.closed.CompareAndSwap(false, true) {
		return nil
	}
	readErr := db.readPool.Close()
	writeErr := db.writePool.Close()
	db.logger.Debug("database closed", "path", db.path)
	if err := errors.Join(readErr, writeErr); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// Remove closes the database and deletes its file and the -wal and -shm
// sidecars. Missing files are ignored.
func (db *Database) Remove() error {
	if err := db.Close(); err != nil {
		return err
	}
	for _, p := range []string{db.path, db.path + "-wal", db.path + "-shm"} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove database file: %w", err)
		}
	}
	db.logger.Debug("database removed", "path", db.path)
	return nil
}

// rawSQLite runs fn against the driver connection underneath conn.
func rawSQLite(conn *sql.Conn, fn func(*sqlite3.SQLiteConn) error) error {
	return conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*sqlite3.SQLiteConn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		return fn(c)
	})
}

// discard closes conn's driver connection instead of returning it to the
// pool. Returning driver.ErrBadConn from Raw is the database/sql way to
// mark a connection unusable.
func discard(conn *sql.Conn) {
	_ = conn.Raw(func(any) error { return errBadConn })
	_ = conn.Close()
}
