package toolkit

import (
	"context"
	"fmt"

	"github.com/roach88/sqlitekit/internal/value"
)

// Statement is one write statement with its bind values.
type Statement struct {
	Query  string `json:"query" yaml:"query"`
	Values []any  `json:"values,omitempty" yaml:"values,omitempty"`
}

// ExecuteTransaction runs stmts atomically: all commit or none do. The
// write connection is held for the whole batch, so no other write
// interleaves. Results are returned in statement order.
//
// On failure the transaction is rolled back even when ctx is done; if the
// rollback also fails a *RollbackFailedError carries both errors.
func (w *Wrapper) ExecuteTransaction(ctx context.Context, stmts []Statement) ([]WriteResult, error) {
	// Bind errors fail before the writer is taken.
	bound, err := bindStatements(stmts)
	if err != nil {
		return nil, err
	}

	writer, err := w.AcquireWriter(ctx)
	if err != nil {
		return nil, err
	}
	defer writer.Release()

	if _, err := writer.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	results, err := execBound(ctx, writer, bound)
	if err != nil {
		return nil, Rollback(ctx, writer, err)
	}
	if _, err := writer.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, Rollback(ctx, writer, fmt.Errorf("commit: %w", err))
	}

	w.logger.Debug("transaction committed", "path", w.db.Path(), "statements", len(stmts))
	return results, nil
}

// ExecStatements runs stmts in order on writer without managing a
// transaction. It stops at the first failure.
func ExecStatements(ctx context.Context, writer Writer, stmts []Statement) ([]WriteResult, error) {
	bound, err := bindStatements(stmts)
	if err != nil {
		return nil, err
	}
	return execBound(ctx, writer, bound)
}

// Rollback rolls back the open transaction on writer after cause. The
// rollback runs even when ctx is already cancelled. It returns cause, or a
// *RollbackFailedError when the rollback fails too.
func Rollback(ctx context.Context, writer Writer, cause error) error {
	if _, err := writer.ExecContext(context.WithoutCancel(ctx), "ROLLBACK"); err != nil {
		return &RollbackFailedError{TransactionErr: cause, RollbackErr: err}
	}
	return cause
}

type boundStatement struct {
	query string
	args  []any
}

func bindStatements(stmts []Statement) ([]boundStatement, error) {
	bound := make([]boundStatement, len(stmts))
	for i, s := range stmts {
		args, err := value.NormalizeAll(s.Values)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		bound[i] = boundStatement{query: s.Query, args: args}
	}
	return bound, nil
}

func execBound(ctx context.Context, writer Writer, bound []boundStatement) ([]WriteResult, error) {
	results := make([]WriteResult, 0, len(bound))
	for i, b := range bound {
		res, err := writer.ExecContext(ctx, b.query, b.args...)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		wr, err := writeResult(res)
		if err != nil {
			return nil, fmt.Errorf("statement %d: %w", i, err)
		}
		results = append(results, wr)
	}
	return results, nil
}
