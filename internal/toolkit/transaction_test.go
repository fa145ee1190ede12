package toolkit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/value"
)

func countPosts(t *testing.T, w *Wrapper) int64 {
	t.Helper()
	row, err := w.FetchOne("SELECT COUNT(*) AS n FROM posts").Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, row)
	n, ok := row.Get("n")
	require.True(t, ok)
	count, ok := n.(value.Integer)
	require.True(t, ok)
	return count.Int64()
}

func TestExecuteTransaction_CommitsAll(t *testing.T) {
	w := openPosts(t)

	results, err := w.ExecuteTransaction(context.Background(), []Statement{
		{Query: "INSERT INTO posts (title, category, score) VALUES (?, ?, ?)", Values: []any{"a", "tech", 1}},
		{Query: "INSERT INTO posts (title, category, score) VALUES (?, ?, ?)", Values: []any{"b", "tech", 2}},
		{Query: "DELETE FROM posts WHERE category = ?", Values: []any{"art"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []WriteResult{
		{RowsAffected: 1, LastInsertID: 8},
		{RowsAffected: 1, LastInsertID: 9},
		{RowsAffected: 2, LastInsertID: 9},
	}, results)
	assert.Equal(t, int64(7), countPosts(t, w))
}

func TestExecuteTransaction_RollsBackOnFailure(t *testing.T) {
	w := openPosts(t)

	_, err := w.ExecuteTransaction(context.Background(), []Statement{
		{Query: "DELETE FROM posts WHERE id = 7"},
		{Query: "INSERT INTO posts (id, title, category, score) VALUES (1, 'dup', 'x', 0)"},
		{Query: "DELETE FROM posts"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement 1")
	assert.Regexp(t, `^SQLITE_\d+$`, ErrorCode(err))
	assert.Equal(t, int64(7), countPosts(t, w), "first statement rolled back")

	// The writer is usable again.
	_, err = w.Execute("DELETE FROM posts WHERE id = 7").Run(context.Background())
	require.NoError(t, err)
}

func TestExecuteTransaction_BindErrorBeforeBegin(t *testing.T) {
	w := openPosts(t)

	_, err := w.ExecuteTransaction(context.Background(), []Statement{
		{Query: "DELETE FROM posts WHERE id = ?", Values: []any{1}},
		{Query: "DELETE FROM posts WHERE id = ?", Values: []any{map[string]int{}}},
	})
	require.Error(t, err)
	assert.Equal(t, "UNSUPPORTED_DATATYPE", ErrorCode(err))
	assert.Equal(t, int64(7), countPosts(t, w))
}

func TestExecuteTransaction_Empty(t *testing.T) {
	w := openPosts(t)

	results, err := w.ExecuteTransaction(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestExecuteTransaction_CancelledContext(t *testing.T) {
	w := openPosts(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := w.ExecuteTransaction(ctx, []Statement{{Query: "DELETE FROM posts"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int64(7), countPosts(t, w))
}

func TestRollbackFailedError(t *testing.T) {
	txErr := errors.New("constraint failed")
	rbErr := errors.New("disk I/O error")
	err := &RollbackFailedError{TransactionErr: txErr, RollbackErr: rbErr}

	assert.Equal(t, "transaction failed: constraint failed; rollback also failed: disk I/O error", err.Error())
	assert.ErrorIs(t, err, txErr)
	assert.ErrorIs(t, err, rbErr)
	assert.Equal(t, "TRANSACTION_ROLLBACK_FAILED", ErrorCode(err))
}

func TestErrorCode_TransactionState(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{nil, ""},
		{ErrTransactionAlreadyFinalized, "TRANSACTION_ALREADY_FINALIZED"},
		{ErrInvalidTransactionToken, "INVALID_TRANSACTION_TOKEN"},
		{&TransactionAlreadyActiveError{Database: "/tmp/a.db"}, "TRANSACTION_ALREADY_ACTIVE"},
		{&NoActiveTransactionError{Database: "/tmp/a.db"}, "NO_ACTIVE_TRANSACTION"},
		{errors.New("boom"), "ERROR"},
		{context.DeadlineExceeded, "CANCELLED"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, ErrorCode(tt.err), "%v", tt.err)
	}

	assert.Equal(t, "transaction already active for database: /tmp/a.db",
		(&TransactionAlreadyActiveError{Database: "/tmp/a.db"}).Error())
	assert.Equal(t, "no active transaction for database: /tmp/a.db",
		(&NoActiveTransactionError{Database: "/tmp/a.db"}).Error())
}
