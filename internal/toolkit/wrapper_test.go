package toolkit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/observer"
	"github.com/roach88/sqlitekit/internal/testutil"
	"github.com/roach88/sqlitekit/internal/value"
)

func TestFetchAll_DecodesStorageClasses(t *testing.T) {
	w := openWrapper(t, "types.db")
	ctx := context.Background()
	mustExec(t, w, "CREATE TABLE t (i INTEGER, r REAL, s TEXT, b BLOB, n TEXT, flag INTEGER)")

	_, err := w.Execute("INSERT INTO t VALUES (?, ?, ?, ?, ?, ?)",
		42, 2.5, "hello", []byte{0x01, 0x02}, nil, true).Run(ctx)
	require.NoError(t, err)

	rows, err := w.FetchAll("SELECT i, r, s, b, n, flag FROM t").Run(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	assert.Equal(t, []string{"i", "r", "s", "b", "n", "flag"}, rows[0].Columns)
	assert.Equal(t, []value.Value{
		value.Integer(42),
		value.Real(2.5),
		value.Text("hello"),
		value.Blob{0x01, 0x02},
		value.Null{},
		value.Integer(1),
	}, rows[0].Values)
}

func TestFetchAll_PreservesColumnOrder(t *testing.T) {
	w := openPosts(t)

	rows, err := w.FetchAll("SELECT score, title, id FROM posts WHERE id = ?", 1).Run(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"score", "title", "id"}, rows[0].Columns)

	data, err := json.Marshal(rows[0])
	require.NoError(t, err)
	assert.Equal(t, `{"score":95,"title":"Quantum basics","id":1}`, string(data))
}

func TestFetchAll_EmptyResult(t *testing.T) {
	w := openPosts(t)

	rows, err := w.FetchAll("SELECT * FROM posts WHERE id > 100").Run(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}

func TestFetchAll_UnsupportedBindValue(t *testing.T) {
	w := openPosts(t)

	_, err := w.FetchAll("SELECT * FROM posts WHERE id = ?", struct{}{}).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED_DATATYPE", ErrorCode(err))
}

func TestFetchOne(t *testing.T) {
	w := openPosts(t)
	ctx := context.Background()

	t.Run("one row", func(t *testing.T) {
		row, err := w.FetchOne("SELECT id, title FROM posts WHERE id = ?", 3).Run(ctx)
		require.NoError(t, err)
		require.NotNil(t, row)
		title, ok := row.Get("title")
		require.True(t, ok)
		assert.Equal(t, value.Text("Rust vs Go"), title)
	})

	t.Run("no rows", func(t *testing.T) {
		row, err := w.FetchOne("SELECT id FROM posts WHERE id = ?", 99).Run(ctx)
		require.NoError(t, err)
		assert.Nil(t, row)
	})

	t.Run("many rows", func(t *testing.T) {
		_, err := w.FetchOne("SELECT id FROM posts WHERE category = ?", "tech").Run(ctx)
		var multi *MultipleRowsError
		require.ErrorAs(t, err, &multi)
		assert.Equal(t, 3, multi.Count)
		assert.Equal(t, "MULTIPLE_ROWS_RETURNED", ErrorCode(err))
	})
}

func TestExecute_ReportsResult(t *testing.T) {
	w := openPosts(t)
	ctx := context.Background()

	res, err := w.Execute("INSERT INTO posts (title, category, score) VALUES (?, ?, ?)", "New", "tech", 10).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, WriteResult{RowsAffected: 1, LastInsertID: 8}, res)

	res, err = w.Execute("UPDATE posts SET score = score + 1 WHERE category = ?", "art").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)
}

func TestExecute_EngineErrorCode(t *testing.T) {
	w := openPosts(t)

	_, err := w.Execute("INSERT INTO posts (id, title, category, score) VALUES (1, 'dup', 'x', 0)").Run(context.Background())
	require.Error(t, err)

	var se sqlite3.Error
	require.True(t, errors.As(err, &se))
	assert.Equal(t, sqlite3.ErrConstraint, se.Code)
	assert.Regexp(t, `^SQLITE_\d+$`, ErrorCode(err))
}

func TestAttach_ReadOnlyQuery(t *testing.T) {
	primary := openPosts(t)
	other := openWrapper(t, "other.db")
	mustExec(t, other,
		"CREATE TABLE tags (post_id INTEGER, tag TEXT)",
		"INSERT INTO tags VALUES (3, 'lang'), (4, 'db')",
	)

	rows, err := primary.FetchAll(
		"SELECT p.id, t.tag FROM posts p JOIN other.tags t ON t.post_id = p.id ORDER BY p.id",
	).Attach(connmgr.AttachedSpec{Database: other.Database(), Alias: "other", Mode: connmgr.ReadOnly}).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{3, 4}, ids(t, rows))

	// The attachment does not outlive the call.
	_, err = primary.FetchAll("SELECT * FROM other.tags").Run(context.Background())
	require.Error(t, err)
}

func TestAttach_ReadWriteExecute(t *testing.T) {
	primary := openPosts(t)
	archive := openWrapper(t, "archive.db")
	mustExec(t, archive, "CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT)")
	ctx := context.Background()

	res, err := primary.Execute("INSERT INTO archive.posts SELECT id, title FROM posts WHERE category = ?", "art").
		Attach(connmgr.AttachedSpec{Database: archive.Database(), Alias: "archive", Mode: connmgr.ReadWrite}).
		Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.RowsAffected)

	rows, err := archive.FetchAll("SELECT id FROM posts ORDER BY id").Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{6, 7}, ids(t, rows))
}

func TestAttach_ReadWriteRejectedForReads(t *testing.T) {
	primary := openPosts(t)
	other := openWrapper(t, "other.db")

	_, err := primary.FetchAll("SELECT 1").
		Attach(connmgr.AttachedSpec{Database: other.Database(), Alias: "other", Mode: connmgr.ReadWrite}).
		Run(context.Background())
	require.ErrorIs(t, err, connmgr.ErrReadWriteAttachOnReader)
	assert.Equal(t, "CONNECTION_ERROR", ErrorCode(err))
}

func TestSubscribe_RequiresObserver(t *testing.T) {
	w := openPosts(t)

	_, err := w.Subscribe("posts")
	require.ErrorIs(t, err, ErrObservationDisabled)
	_, err = w.SubscribeStream("posts")
	require.ErrorIs(t, err, ErrObservationDisabled)
}

func TestSubscribe_ReceivesCommittedWrites(t *testing.T) {
	cfg := observer.DefaultConfig()
	cfg.Clock = testutil.NewDeterministicClock()
	w := openPosts(t, WithObserver(cfg))
	ctx := context.Background()

	rx, err := w.Subscribe("posts")
	require.NoError(t, err)
	defer rx.Close()

	_, err = w.Execute("UPDATE posts SET score = 1 WHERE id = ?", 2).Run(ctx)
	require.NoError(t, err)

	ev, ok, err := rx.TryRecv()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "posts", ev.Change.Table)
	assert.Equal(t, observer.Update, ev.Change.Operation)
	require.NotNil(t, ev.Change.Rowid)
	assert.Equal(t, int64(2), *ev.Change.Rowid)

	// A failed atomic transaction publishes nothing.
	_, err = w.ExecuteTransaction(ctx, []Statement{
		{Query: "UPDATE posts SET score = 2 WHERE id = 2"},
		{Query: "INSERT INTO posts (id, title, category, score) VALUES (1, 'dup', 'x', 0)"},
	})
	require.Error(t, err)
	_, ok, err = rx.TryRecv()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClose(t *testing.T) {
	w := openPosts(t)
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	_, err := w.FetchAll("SELECT 1").Run(context.Background())
	require.ErrorIs(t, err, connmgr.ErrDatabaseClosed)
	assert.Equal(t, "DATABASE_CLOSED", ErrorCode(err))

	_, err = w.Execute("DELETE FROM posts").Run(context.Background())
	require.ErrorIs(t, err, connmgr.ErrDatabaseClosed)
}
