package harness

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/toolkit"
	"github.com/roach88/sqlitekit/internal/value"
)

func change(op, table string) TraceEvent {
	return TraceEvent{Type: EventChange, Operation: op, Table: table}
}

func sampleTrace() []TraceEvent {
	return []TraceEvent{
		{Type: EventStep, Kind: KindTx},
		change("insert", "posts"),
		change("insert", "tags"),
		change("update", "posts"),
		{Type: EventStep, Kind: KindExec},
		change("delete", "posts"),
	}
}

func openStateDB(t *testing.T) *toolkit.Wrapper {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	w, err := toolkit.Connect(context.Background(), filepath.Join(t.TempDir(), "state.db"), &connmgr.Config{Logger: logger})
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	_, err = w.ExecuteTransaction(context.Background(), []toolkit.Statement{
		{Query: "CREATE TABLE posts (id INTEGER PRIMARY KEY, title TEXT, score REAL, flag INTEGER, note TEXT)"},
		{Query: "INSERT INTO posts VALUES (1, 'hello', 2.5, 1, NULL)"},
		{Query: "INSERT INTO posts VALUES (2, 'dup', 1.0, 0, 'x')"},
		{Query: "INSERT INTO posts VALUES (3, 'dup', 1.0, 0, 'y')"},
	})
	require.NoError(t, err)
	return w
}

func TestAssertChangeCount(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   bool
	}{
		{"all changes", Assertion{Count: 4}, false},
		{"by table", Assertion{Table: "posts", Count: 3}, false},
		{"by operation", Assertion{Operation: "insert", Count: 2}, false},
		{"by both", Assertion{Table: "posts", Operation: "insert", Count: 1}, false},
		{"none matching", Assertion{Table: "users", Count: 0}, false},
		{"wrong count", Assertion{Table: "posts", Count: 2}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertChangeCount(trace, tt.assertion)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, AssertChangeCount, ae.Type)
			assert.Equal(t, "3 changes", ae.Actual)
		})
	}
}

func TestAssertChangeOrder(t *testing.T) {
	trace := sampleTrace()

	tests := []struct {
		name    string
		changes []string
		wantErr string
	}{
		{"in order", []string{"insert posts", "update posts", "delete posts"}, ""},
		{"gaps allowed", []string{"insert tags", "delete posts"}, ""},
		{"extra spaces", []string{"insert   posts"}, ""},
		{"out of order", []string{"update posts", "insert tags"}, `no "insert tags" after the first 1 matched`},
		{"missing", []string{"delete tags"}, `no "delete tags" after the first 0 matched`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertChangeOrder(trace, Assertion{Type: AssertChangeOrder, Changes: tt.changes})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertionError_ListsChanges(t *testing.T) {
	err := &AssertionError{
		Type:     AssertChangeCount,
		Expected: "1 changes matching any posts",
		Actual:   "3 changes",
		Trace:    sampleTrace(),
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: change_count")
	assert.Contains(t, msg, "Expected: 1 changes matching any posts")
	assert.Contains(t, msg, "[1] insert posts")
	assert.Contains(t, msg, "[4] delete posts")
}

func TestAssertFinalState(t *testing.T) {
	w := openStateDB(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		assertion Assertion
		wantErr   string
	}{
		{
			name:      "match",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id": 1}, Expect: map[string]any{"title": "hello", "score": 2.5}},
		},
		{
			name:      "bool against integer",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id": 1}, Expect: map[string]any{"flag": true}},
		},
		{
			name:      "null where and expect",
			assertion: Assertion{Table: "posts", Where: map[string]any{"note": nil}, Expect: map[string]any{"note": nil, "id": 1}},
		},
		{
			name:      "value mismatch",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id": 1}, Expect: map[string]any{"title": "bye"}},
			wantErr:   `column "title" = hello (text)`,
		},
		{
			name:      "missing column",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id": 1}, Expect: map[string]any{"body": "x"}},
			wantErr:   `column "body" not present`,
		},
		{
			name:      "row not found",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id": 99}, Expect: map[string]any{"title": "x"}},
			wantErr:   "row not found",
		},
		{
			name:      "ambiguous",
			assertion: Assertion{Table: "posts", Where: map[string]any{"title": "dup"}, Expect: map[string]any{"score": 1.0}},
			wantErr:   "2 rows matched",
		},
		{
			name:      "invalid table",
			assertion: Assertion{Table: "posts; DROP TABLE posts", Expect: map[string]any{"id": 1}},
			wantErr:   "invalid table name",
		},
		{
			name:      "invalid where column",
			assertion: Assertion{Table: "posts", Where: map[string]any{"id = 1 OR 1": 1}, Expect: map[string]any{"id": 1}},
			wantErr:   "invalid column name",
		},
		{
			name:      "missing table",
			assertion: Assertion{Table: "users", Where: map[string]any{"id": 1}, Expect: map[string]any{"id": 1}},
			wantErr:   "query error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertFinalState(ctx, w, tt.assertion)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertRowCount(t *testing.T) {
	w := openStateDB(t)
	ctx := context.Background()

	assert.NoError(t, assertRowCount(ctx, w, Assertion{Table: "posts", Count: 3}))

	err := assertRowCount(ctx, w, Assertion{Table: "posts", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: 3 rows")

	err = assertRowCount(ctx, w, Assertion{Table: "bad name", Count: 1})
	assert.ErrorContains(t, err, "invalid table name")
}

func TestBuildWhereClause(t *testing.T) {
	sql, args, err := buildWhereClause(map[string]any{"title": "a", "id": 1, "note": nil})
	require.NoError(t, err)
	assert.Equal(t, "id = ? AND note IS NULL AND title = ?", sql)
	assert.Equal(t, []any{1, "a"}, args)

	sql, args, err = buildWhereClause(nil)
	require.NoError(t, err)
	assert.Empty(t, sql)
	assert.Nil(t, args)
}

func TestStateValuesEqual(t *testing.T) {
	assert.True(t, stateValuesEqual(3, value.Integer(3)))
	assert.True(t, stateValuesEqual(3.0, value.Integer(3)))
	assert.True(t, stateValuesEqual(1.5, value.Real(1.5)))
	assert.True(t, stateValuesEqual(false, value.Integer(0)))
	assert.True(t, stateValuesEqual(nil, value.Null{}))
	assert.True(t, stateValuesEqual("a", value.Text("a")))
	assert.False(t, stateValuesEqual("3", value.Integer(3)))
	assert.False(t, stateValuesEqual(3, value.Real(3.5)))
	assert.False(t, stateValuesEqual(map[string]any{}, value.Text("a")))
}

func TestEvaluateAssertions_RequiresDatabase(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()

	errs := EvaluateAssertions(context.Background(), result, []Assertion{
		{Type: AssertChangeCount, Count: 4},
		{Type: AssertRowCount, Table: "posts", Count: 1},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "row_count requires database access")
	assert.Contains(t, errs[1], `unknown assertion type "bogus"`)
}
