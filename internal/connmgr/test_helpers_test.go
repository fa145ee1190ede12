package connmgr

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// openTestDB connects to a fresh database in t.TempDir and closes it on cleanup.
func openTestDB(t *testing.T, name string, cfg *Config) *Database {
	t.Helper()
	if cfg == nil {
		cfg = &Config{}
	}
	cfg.Logger = quietLogger()
	db, err := Connect(context.Background(), filepath.Join(t.TempDir(), name), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// execWrite runs stmts on the write connection and releases it.
func execWrite(t *testing.T, db *Database, stmts ...string) {
	t.Helper()
	ctx := context.Background()
	g, err := db.AcquireWriter(ctx)
	require.NoError(t, err)
	defer g.Release()
	for _, s := range stmts {
		_, err := g.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
}

func countRows(t *testing.T, db *Database, table string) int {
	t.Helper()
	pool, err := db.ReadPool()
	require.NoError(t, err)
	var n int
	require.NoError(t, pool.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}
