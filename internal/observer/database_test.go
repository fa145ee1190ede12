package observer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/testutil"
	"github.com/roach88/sqlitekit/internal/value"
)

func openObservable(t *testing.T, setup ...string) *ObservableDatabase {
	t.Helper()
	ctx := context.Background()
	db, err := connmgr.Connect(ctx, filepath.Join(t.TempDir(), "observe.db"), &connmgr.Config{Logger: quietLogger()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	g, err := db.AcquireWriter(ctx)
	require.NoError(t, err)
	for _, s := range setup {
		_, err := g.ExecContext(ctx, s)
		require.NoError(t, err, s)
	}
	require.NoError(t, g.Release())

	cfg := DefaultConfig()
	cfg.Clock = testutil.NewDeterministicClock()
	cfg.Logger = quietLogger()
	return New(db, cfg)
}

func exec(t *testing.T, g *ObservableWriteGuard, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := g.ExecContext(context.Background(), s)
		require.NoError(t, err, s)
	}
}

func drain(t *testing.T, rx *Receiver) []TableChange {
	t.Helper()
	var out []TableChange
	for {
		ev, ok, err := rx.TryRecv()
		require.NoError(t, err)
		if !ok {
			return out
		}
		require.False(t, ev.IsLagged())
		out = append(out, ev.Change)
	}
}

const postsTable = "CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)"

func TestObservable_CommitDeliversChanges(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	exec(t, g,
		"BEGIN",
		"INSERT INTO posts (id, title) VALUES (1, 'a')",
		"UPDATE posts SET title = 'b' WHERE id = 1",
		"DELETE FROM posts WHERE id = 1",
	)
	assert.Empty(t, drain(t, rx), "nothing is visible before commit")

	exec(t, g, "COMMIT")
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 3)
	wantOps := []Operation{Insert, Update, Delete}
	for i, ch := range changes {
		assert.Equal(t, "posts", ch.Table)
		assert.Equal(t, wantOps[i], ch.Operation)
		require.NotNil(t, ch.Rowid)
		assert.Equal(t, int64(1), *ch.Rowid)
		assert.True(t, ch.KeyResolved)
		assert.Equal(t, []value.Value{value.Integer(1)}, ch.PrimaryKey)
		assert.True(t, ch.Timestamp.After(testutil.Epoch))
	}
}

func TestObservable_AutocommitStatementDelivers(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	defer g.Release()
	exec(t, g, "INSERT INTO posts (title) VALUES ('x'), ('y')")

	assert.Len(t, drain(t, rx), 2)
}

func TestObservable_RollbackDeliversNothing(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	exec(t, g, "BEGIN", "INSERT INTO posts (title) VALUES ('x')", "ROLLBACK")

	// A later commit does not resurrect the rolled back change.
	exec(t, g, "INSERT INTO posts (title) VALUES ('y')")
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), *changes[0].Rowid)
}

func TestObservable_FailedStatementInTransaction(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	exec(t, g, "BEGIN IMMEDIATE")

	// Row 5 is written before the duplicate aborts the statement.
	_, err = g.ExecContext(ctx, "INSERT INTO posts (id) VALUES (5), (5)")
	require.Error(t, err)

	exec(t, g, "INSERT INTO posts (id) VALUES (6)", "COMMIT")
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(6), *changes[0].Rowid)
}

func TestObservable_FailedAutocommitStatement(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	_, err = g.ExecContext(ctx, "INSERT INTO posts (id) VALUES (5), (5)")
	require.Error(t, err)
	exec(t, g, "INSERT INTO posts (id) VALUES (6)")
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(6), *changes[0].Rowid)
}

func TestObservable_RollbackToSavepoint(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	exec(t, g,
		"BEGIN",
		"INSERT INTO posts (id) VALUES (1)",
		"SAVEPOINT outer_sp",
		"INSERT INTO posts (id) VALUES (2)",
		"SAVEPOINT inner_sp",
		"INSERT INTO posts (id) VALUES (3)",
		"RELEASE inner_sp",
		"ROLLBACK TO outer_sp",
		"INSERT INTO posts (id) VALUES (4)",
		"RELEASE outer_sp",
		"COMMIT",
	)
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 2)
	assert.Equal(t, int64(1), *changes[0].Rowid)
	assert.Equal(t, int64(4), *changes[1].Rowid)
}

func TestObservable_SavepointAsTransaction(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	exec(t, g,
		"SAVEPOINT sp",
		"INSERT INTO posts (id) VALUES (1)",
		"ROLLBACK TO sp",
		"INSERT INTO posts (id) VALUES (2)",
	)
	assert.Empty(t, drain(t, rx), "nothing is visible before the outermost release")

	exec(t, g, "RELEASE sp")
	require.NoError(t, g.Release())

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(2), *changes[0].Rowid)
}

func TestObservable_ReleaseWithOpenTransactionDeliversNothing(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	exec(t, g, "BEGIN", "INSERT INTO posts (title) VALUES ('x')")
	require.NoError(t, g.Release())
	require.NoError(t, g.Release())

	assert.Empty(t, drain(t, rx))

	pool, err := o.Database().ReadPool()
	require.NoError(t, err)
	var n int
	require.NoError(t, pool.QueryRow("SELECT COUNT(*) FROM posts").Scan(&n))
	assert.Equal(t, 0, n)
}

func TestObservable_UnobservedTablesIgnored(t *testing.T) {
	o := openObservable(t, postsTable, "CREATE TABLE other (id INTEGER PRIMARY KEY)")
	rx := o.Subscribe("posts")
	defer rx.Close()

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	defer g.Release()
	exec(t, g, "INSERT INTO other DEFAULT VALUES")

	assert.Empty(t, drain(t, rx))
}

func TestObservable_HooksRemovedOnRelease(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Release())

	// A plain writer reuses the same connection; nothing may fire.
	plain, err := o.Database().AcquireWriter(ctx)
	require.NoError(t, err)
	_, err = plain.ExecContext(ctx, "INSERT INTO posts (title) VALUES ('x')")
	require.NoError(t, err)
	require.NoError(t, plain.Release())

	assert.Empty(t, drain(t, rx))
}

func TestObservable_IntoInner(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts")
	defer rx.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	exec(t, g, "INSERT INTO posts (title) VALUES ('observed')")

	inner, err := g.IntoInner()
	require.NoError(t, err)
	_, err = inner.ExecContext(ctx, "INSERT INTO posts (title) VALUES ('unobserved')")
	require.NoError(t, err)
	require.NoError(t, inner.Release())

	// Release after IntoInner is a no-op.
	require.NoError(t, g.Release())
	_, err = g.IntoInner()
	assert.Error(t, err)

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.Equal(t, int64(1), *changes[0].Rowid)
}

func TestObservable_EnsureTableInfoOnAcquire(t *testing.T) {
	o := openObservable(t, postsTable)
	rx := o.Subscribe("posts", "missing")
	defer rx.Close()

	_, ok := o.Broker().TableInfo("posts")
	assert.False(t, ok, "resolution is deferred to writer acquisition")

	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	require.NoError(t, g.Release())

	info, ok := o.Broker().TableInfo("posts")
	require.True(t, ok)
	assert.True(t, info.IntegerPK)
	_, ok = o.Broker().TableInfo("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"missing", "posts"}, o.Broker().ObservedTables())
}

func TestObservable_UnresolvedTableStillDelivered(t *testing.T) {
	o := openObservable(t)
	rx := o.Subscribe("later")
	defer rx.Close()

	// The table does not exist when the writer resolves layouts.
	g, err := o.AcquireWriter(context.Background())
	require.NoError(t, err)
	defer g.Release()
	exec(t, g,
		"CREATE TABLE later (id INTEGER PRIMARY KEY, v TEXT)",
		"INSERT INTO later (id, v) VALUES (5, 'x')",
	)

	changes := drain(t, rx)
	require.Len(t, changes, 1)
	assert.False(t, changes[0].KeyResolved)
	assert.Empty(t, changes[0].PrimaryKey)
	require.NotNil(t, changes[0].Rowid)
	assert.Equal(t, int64(5), *changes[0].Rowid)
}

func TestObservable_SubscribeStreamFilters(t *testing.T) {
	o := openObservable(t, postsTable, "CREATE TABLE tags (id INTEGER PRIMARY KEY)")
	all := o.Subscribe("tags")
	defer all.Close()
	s := o.SubscribeStream("posts")
	defer s.Close()
	ctx := context.Background()

	g, err := o.AcquireWriter(ctx)
	require.NoError(t, err)
	exec(t, g, "INSERT INTO tags DEFAULT VALUES", "INSERT INTO posts (title) VALUES ('p')")
	require.NoError(t, g.Release())

	ev, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "posts", ev.Change.Table)
	assert.Len(t, drain(t, all), 2)
}

func TestObservable_ClosedDatabase(t *testing.T) {
	o := openObservable(t)
	require.NoError(t, o.Database().Close())

	_, err := o.AcquireWriter(context.Background())
	assert.ErrorIs(t, err, connmgr.ErrDatabaseClosed)
}
