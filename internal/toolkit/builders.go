package toolkit

import (
	"context"
	"fmt"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/value"
)

// FetchAllQuery returns every row of a read query.
type FetchAllQuery struct {
	w        *Wrapper
	query    string
	values   []any
	attached []connmgr.AttachedSpec
}

// FetchAll prepares a read query with positional bind values.
func (w *Wrapper) FetchAll(query string, values ...any) *FetchAllQuery {
	return &FetchAllQuery{w: w, query: query, values: values}
}

// Attach makes other databases visible for this query only.
func (q *FetchAllQuery) Attach(specs ...connmgr.AttachedSpec) *FetchAllQuery {
	q.attached = append(q.attached, specs...)
	return q
}

// Run executes the query on a read connection.
func (q *FetchAllQuery) Run(ctx context.Context) ([]Row, error) {
	return q.w.read(ctx, q.query, q.values, q.attached)
}

// FetchOneQuery returns at most one row.
type FetchOneQuery struct {
	w        *Wrapper
	query    string
	values   []any
	attached []connmgr.AttachedSpec
}

// FetchOne prepares a read query expected to match zero or one row.
func (w *Wrapper) FetchOne(query string, values ...any) *FetchOneQuery {
	return &FetchOneQuery{w: w, query: query, values: values}
}

// Attach makes other databases visible for this query only.
func (q *FetchOneQuery) Attach(specs ...connmgr.AttachedSpec) *FetchOneQuery {
	q.attached = append(q.attached, specs...)
	return q
}

// Run executes the query. It returns nil when no row matched and a
// *MultipleRowsError when more than one did.
func (q *FetchOneQuery) Run(ctx context.Context) (*Row, error) {
	rows, err := q.w.read(ctx, q.query, q.values, q.attached)
	if err != nil {
		return nil, err
	}
	switch len(rows) {
	case 0:
		return nil, nil
	case 1:
		return &rows[0], nil
	default:
		return nil, &MultipleRowsError{Count: len(rows)}
	}
}

// ExecuteQuery runs one write statement.
type ExecuteQuery struct {
	w        *Wrapper
	query    string
	values   []any
	attached []connmgr.AttachedSpec
}

// Execute prepares a write statement with positional bind values.
func (w *Wrapper) Execute(query string, values ...any) *ExecuteQuery {
	return &ExecuteQuery{w: w, query: query, values: values}
}

// Attach makes other databases visible for this statement only.
// ReadWrite attachments hold those databases' writers for the call.
func (q *ExecuteQuery) Attach(specs ...connmgr.AttachedSpec) *ExecuteQuery {
	q.attached = append(q.attached, specs...)
	return q
}

// Run executes the statement on the write connection.
//
// Statements run with attachments use the plain writer and are not
// observed.
func (q *ExecuteQuery) Run(ctx context.Context) (WriteResult, error) {
	args, err := value.NormalizeAll(q.values)
	if err != nil {
		return WriteResult{}, err
	}

	if len(q.attached) > 0 {
		conn, err := q.w.db.AcquireWriterWithAttached(ctx, q.attached)
		if err != nil {
			return WriteResult{}, err
		}
		res, execErr := conn.ExecContext(ctx, q.query, args...)
		detachErr := conn.DetachAll(context.WithoutCancel(ctx))
		if execErr != nil {
			return WriteResult{}, execErr
		}
		if detachErr != nil {
			return WriteResult{}, detachErr
		}
		return writeResult(res)
	}

	writer, err := q.w.AcquireWriter(ctx)
	if err != nil {
		return WriteResult{}, err
	}
	defer writer.Release()

	res, err := writer.ExecContext(ctx, q.query, args...)
	if err != nil {
		return WriteResult{}, err
	}
	return writeResult(res)
}

// PageQuery fetches one keyset page.
type PageQuery struct {
	w        *Wrapper
	query    string
	values   []any
	keyset   []keyset.Column
	pageSize int
	after    []any
	before   []any
	attached []connmgr.AttachedSpec
}

// FetchPage prepares a keyset-paginated read. query must not carry its own
// ORDER BY, LIMIT or OFFSET; values bind its positional parameters.
func (w *Wrapper) FetchPage(query string, values []any, ks []keyset.Column, pageSize int) *PageQuery {
	return &PageQuery{w: w, query: query, values: values, keyset: ks, pageSize: pageSize}
}

// After continues forward from cursor, one value per keyset column.
func (q *PageQuery) After(cursor ...any) *PageQuery {
	q.after = nonNil(cursor)
	return q
}

// Before pages backward from cursor, one value per keyset column.
func (q *PageQuery) Before(cursor ...any) *PageQuery {
	q.before = nonNil(cursor)
	return q
}

// Attach makes other databases visible for this page only.
func (q *PageQuery) Attach(specs ...connmgr.AttachedSpec) *PageQuery {
	q.attached = append(q.attached, specs...)
	return q
}

// Run compiles and executes the page query. Rows are always returned in
// keyset order, including when paging backward.
func (q *PageQuery) Run(ctx context.Context) (*keyset.Page[Row], error) {
	if q.after != nil && q.before != nil {
		return nil, keyset.ErrConflictingCursors
	}

	req := keyset.Request{
		BaseQuery:  q.query,
		ParamCount: len(q.values),
		Keyset:     q.keyset,
		PageSize:   q.pageSize,
	}
	var raw []any
	switch {
	case q.after != nil:
		raw = q.after
	case q.before != nil:
		raw = q.before
		req.Backward = true
	}
	if raw != nil {
		cursor, err := toValues(raw)
		if err != nil {
			return nil, fmt.Errorf("cursor: %w", err)
		}
		req.Cursor = cursor
	}

	built, err := keyset.Build(req)
	if err != nil {
		return nil, err
	}

	args := make([]any, 0, len(q.values)+len(built.Args))
	args = append(args, q.values...)
	args = append(args, value.Args(built.Args)...)

	rows, err := q.w.read(ctx, built.SQL, args, q.attached)
	if err != nil {
		return nil, err
	}
	return keyset.Shape(rows, q.pageSize, req.Backward, func(r Row) ([]value.Value, error) {
		return keyset.CursorFrom(r.Columns, r.Values, q.keyset)
	})
}

// nonNil keeps an explicitly empty cursor distinguishable from no cursor.
func nonNil(vals []any) []any {
	if vals == nil {
		return []any{}
	}
	return vals
}

// read runs query on the read pool, or on a reader with attachments.
func (w *Wrapper) read(ctx context.Context, query string, values []any, attached []connmgr.AttachedSpec) ([]Row, error) {
	args, err := value.NormalizeAll(values)
	if err != nil {
		return nil, err
	}

	if len(attached) > 0 {
		conn, err := w.db.AcquireReaderWithAttached(ctx, attached)
		if err != nil {
			return nil, err
		}
		rows, err := conn.QueryContext(ctx, query, args...)
		var out []Row
		if err == nil {
			out, err = decodeRows(rows)
		}
		detachErr := conn.DetachAll(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		if detachErr != nil {
			return nil, detachErr
		}
		return out, nil
	}

	pool, err := w.db.ReadPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}

// QueryWriter runs a read query on a held writer, seeing its uncommitted
// changes.
func QueryWriter(ctx context.Context, writer Writer, query string, values ...any) ([]Row, error) {
	args, err := value.NormalizeAll(values)
	if err != nil {
		return nil, err
	}
	rows, err := writer.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return decodeRows(rows)
}
