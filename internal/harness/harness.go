package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/roach88/sqlitekit/internal/connmgr"
	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/observer"
	"github.com/roach88/sqlitekit/internal/testutil"
	"github.com/roach88/sqlitekit/internal/toolkit"
)

// traceCapacity bounds the broadcast buffer of a scenario run. A scenario
// that commits more changes in one step than this fails with a lag error.
const traceCapacity = 4096

// Harness runs one scenario against one database.
type Harness struct {
	w      *toolkit.Wrapper
	stream *observer.Stream
	logger *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh database file created in dir, which must
// not already hold one. Change timestamps come from a
// testutil.DeterministicClock, so traces are reproducible.
//
// Execution flow:
// 1. Create the database with the scenario's tables observed
// 2. Run setup statements in one transaction
// 3. Subscribe, then run flow steps and check their expectations
// 4. Evaluate assertions against the trace and the final rows
//
// The error return covers harness failures (bad setup, unusable database);
// step and assertion failures are reported in the Result.
func Run(ctx context.Context, scenario *Scenario, dir string) (*Result, error) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	obsCfg := observer.DefaultConfig()
	obsCfg.Tables = scenario.Observe
	obsCfg.ChannelCapacity = traceCapacity
	obsCfg.Clock = testutil.NewDeterministicClock()
	obsCfg.Logger = logger

	path := filepath.Join(dir, "scenario.db")
	w, err := toolkit.Connect(ctx, path, &connmgr.Config{Logger: logger}, toolkit.WithObserver(obsCfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open scenario database: %w", err)
	}
	defer w.Close()

	if err := executeSetup(ctx, w, scenario.Setup); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	stream, err := w.SubscribeStream(scenario.Observe...)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	h := &Harness{w: w, stream: stream, logger: logger}

	result := NewResult()
	for i, step := range scenario.Flow {
		h.executeStep(ctx, i, step, result)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, w) {
		result.AddError(msg)
	}

	return result, nil
}

func executeSetup(ctx context.Context, w *toolkit.Wrapper, setup []string) error {
	if len(setup) == 0 {
		return nil
	}
	stmts := make([]toolkit.Statement, len(setup))
	for i, q := range setup {
		stmts[i] = toolkit.Statement{Query: q}
	}
	_, err := w.ExecuteTransaction(ctx, stmts)
	return err
}

// executeStep runs one flow step, traces its outcome and the changes it
// committed, and checks its expect clause.
func (h *Harness) executeStep(ctx context.Context, i int, step FlowStep, result *Result) {
	kind := step.Kind()
	ev, err := h.runStep(ctx, kind, step)
	ev.Kind = kind
	ev.Error = toolkit.ErrorCode(err)
	result.addStep(ev)
	h.drainChanges(result)

	h.logger.Debug("flow step completed", "step", i, "kind", kind, "code", ev.Error)

	expect := step.Expect
	if expect == nil {
		expect = &ExpectClause{}
	}
	if ev.Error != expect.Error {
		want := expect.Error
		if want == "" {
			want = "success"
		}
		result.AddError(fmt.Sprintf("flow[%d] %s: expected %s, got %s: %v", i, kind, want, ev.Error, err))
		return
	}
	if err != nil {
		return
	}

	if expect.RowsAffected != nil && (ev.RowsAffected == nil || *ev.RowsAffected != *expect.RowsAffected) {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected %d rows affected, got %s", i, kind, *expect.RowsAffected, optString(ev.RowsAffected)))
	}
	if expect.Rows != nil && (ev.Rows == nil || *ev.Rows != *expect.Rows) {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected %d rows, got %s", i, kind, *expect.Rows, optString(ev.Rows)))
	}
	if expect.HasMore != nil && (ev.HasMore == nil || *ev.HasMore != *expect.HasMore) {
		result.AddError(fmt.Sprintf("flow[%d] %s: expected has_more %t, got %s", i, kind, *expect.HasMore, optString(ev.HasMore)))
	}
}

func (h *Harness) runStep(ctx context.Context, kind string, step FlowStep) (TraceEvent, error) {
	var ev TraceEvent

	switch kind {
	case KindExec:
		res, err := h.w.Execute(step.Exec.Query, step.Exec.Values...).Run(ctx)
		if err != nil {
			return ev, err
		}
		ev.RowsAffected = &res.RowsAffected
	case KindTx:
		results, err := h.w.ExecuteTransaction(ctx, step.Tx)
		if err != nil {
			return ev, err
		}
		var total int64
		for _, r := range results {
			total += r.RowsAffected
		}
		ev.RowsAffected = &total
	case KindQuery:
		rows, err := h.w.FetchAll(step.Query.Query, step.Query.Values...).Run(ctx)
		if err != nil {
			return ev, err
		}
		n := len(rows)
		ev.Rows = &n
	case KindPage:
		cols, err := keyset.ParseColumns(step.Page.Keyset)
		if err != nil {
			return ev, err
		}
		q := h.w.FetchPage(step.Page.Query, step.Page.Values, cols, step.Page.Size)
		if step.Page.After != nil {
			q.After(step.Page.After...)
		}
		if step.Page.Before != nil {
			q.Before(step.Page.Before...)
		}
		page, err := q.Run(ctx)
		if err != nil {
			return ev, err
		}
		n := len(page.Rows)
		ev.Rows = &n
		ev.HasMore = &page.HasMore
		ev.Cursor = page.NextCursor
	default:
		return ev, errors.New("step has no operation")
	}
	return ev, nil
}

// drainChanges appends every buffered change to the trace. Changes are
// published during commit, so everything a step committed is buffered by
// the time it returns.
func (h *Harness) drainChanges(result *Result) {
	for {
		ev, ok, err := h.stream.TryNext()
		if err != nil || !ok {
			return
		}
		if ev.IsLagged() {
			result.AddError(fmt.Sprintf("trace lost %d changes", ev.Lagged))
			continue
		}
		ch := ev.Change
		result.addChange(TraceEvent{
			Table:     ch.Table,
			Operation: ch.Operation.String(),
			Rowid:     ch.Rowid,
			Key:       ch.PrimaryKey,
			Timestamp: ch.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
}

func optString[T any](p *T) string {
	if p == nil {
		return "nothing"
	}
	return fmt.Sprint(*p)
}
