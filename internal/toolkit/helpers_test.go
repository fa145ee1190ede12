package toolkit

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/testutil"
	"github.com/roach88/sqlitekit/internal/value"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openWrapper(t *testing.T, name string, opts ...Option) *Wrapper {
	t.Helper()
	w, err := Connect(context.Background(), filepath.Join(t.TempDir(), name), &connmgr.Config{Logger: quietLogger()}, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

// openPosts returns a wrapper over a database loaded with testutil.PostsFixture.
func openPosts(t *testing.T, opts ...Option) *Wrapper {
	t.Helper()
	w := openWrapper(t, "posts.db", opts...)
	mustExec(t, w, testutil.PostsFixture...)
	return w
}

func mustExec(t *testing.T, w *Wrapper, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := w.Execute(s).Run(context.Background())
		require.NoError(t, err, s)
	}
}

// ids returns the id column of each row.
func ids(t *testing.T, rows []Row) []int64 {
	t.Helper()
	out := make([]int64, 0, len(rows))
	for _, r := range rows {
		v, ok := r.Get("id")
		require.True(t, ok, "row has no id column")
		n, ok := v.(value.Integer)
		require.True(t, ok, "id is %T", v)
		out = append(out, n.Int64())
	}
	return out
}

// cursorArgs converts a page cursor back to After/Before arguments.
func cursorArgs(cursor []value.Value) []any {
	return value.Args(cursor)
}

var mixedKeyset = []keyset.Column{
	keyset.Ascending("category"),
	keyset.Descending("score"),
	keyset.Ascending("id"),
}
