package harness

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/roach88/sqlitekit/internal/observer"
	"github.com/roach88/sqlitekit/internal/toolkit"
	"github.com/roach88/sqlitekit/internal/value"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Only allows alphanumeric and underscore, must start with letter or underscore.
// This prevents SQL injection via identifier interpolation.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	var changes []string
	for _, event := range e.Trace {
		if event.Type == EventChange {
			changes = append(changes, changeRef(event))
		}
	}
	if len(changes) > 0 {
		fmt.Fprintf(&buf, "\nChanges:\n")
		for i, c := range changes {
			fmt.Fprintf(&buf, "  [%d] %s\n", i+1, c)
		}
	}

	return buf.String()
}

func validOperation(op string) bool {
	switch op {
	case observer.Insert.String(), observer.Update.String(), observer.Delete.String():
		return true
	}
	return false
}

// parseChangeRef splits "operation table".
func parseChangeRef(ref string) (op, table string, err error) {
	fields := strings.Fields(ref)
	if len(fields) != 2 || !validOperation(fields[0]) {
		return "", "", fmt.Errorf("change %q must be written \"<insert|update|delete> <table>\"", ref)
	}
	return fields[0], fields[1], nil
}

func changeRef(ev TraceEvent) string {
	return ev.Operation + " " + ev.Table
}

// assertChangeCount checks how many traced changes match the assertion's
// table and operation filters.
func assertChangeCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != EventChange {
			continue
		}
		if assertion.Table != "" && event.Table != assertion.Table {
			continue
		}
		if assertion.Operation != "" && event.Operation != assertion.Operation {
			continue
		}
		count++
	}

	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertChangeCount,
			Expected: fmt.Sprintf("%d changes matching %s", assertion.Count, describeFilter(assertion)),
			Actual:   fmt.Sprintf("%d changes", count),
			Trace:    trace,
		}
	}
	return nil
}

func describeFilter(a Assertion) string {
	op, table := a.Operation, a.Table
	if op == "" {
		op = "any"
	}
	if table == "" {
		table = "*"
	}
	return op + " " + table
}

// assertChangeOrder checks that the listed changes appear in order.
// Changes need not be consecutive; intervening changes are allowed.
func assertChangeOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next == len(assertion.Changes) {
			break
		}
		if event.Type == EventChange && changeRef(event) == normalizeRef(assertion.Changes[next]) {
			next++
		}
	}

	if next < len(assertion.Changes) {
		return &AssertionError{
			Type:     AssertChangeOrder,
			Expected: fmt.Sprintf("changes in order: %v", assertion.Changes),
			Actual:   fmt.Sprintf("no %q after the first %d matched", assertion.Changes[next], next),
			Trace:    trace,
		}
	}
	return nil
}

func normalizeRef(ref string) string {
	return strings.Join(strings.Fields(ref), " ")
}

// assertRowCount counts the rows of a table.
func assertRowCount(ctx context.Context, w *toolkit.Wrapper, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	row, err := w.FetchOne(fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", assertion.Table)).Run(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("count rows of %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	n, _ := row.Get("n")
	if !value.Equal(n, value.Integer(assertion.Count)) {
		return &AssertionError{
			Type:     AssertRowCount,
			Expected: fmt.Sprintf("%d rows in %s", assertion.Count, assertion.Table),
			Actual:   fmt.Sprintf("%s rows", value.String(n)),
		}
	}
	return nil
}

// assertFinalState checks that exactly one row matches Where and that it
// holds the expected values. Values are bound, never interpolated.
func assertFinalState(ctx context.Context, w *toolkit.Wrapper, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	whereSQL, whereArgs, err := buildWhereClause(assertion.Where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := w.FetchAll(query, whereArgs...).Run(ctx)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}

	whereDesc := formatWhereClause(assertion.Where)
	switch len(rows) {
	case 0:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, whereDesc),
			Actual:   "row not found",
		}
	case 1:
	default:
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, whereDesc),
			Actual:   fmt.Sprintf("%d rows matched (assertion is ambiguous)", len(rows)),
		}
	}

	row := rows[0]
	for _, key := range sortedKeys(assertion.Expect) {
		expected := assertion.Expect[key]
		actual, exists := row.Get(key)
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q to exist", key),
				Actual:   fmt.Sprintf("column %q not present in result columns: %v", key, row.Columns),
			}
		}
		if !stateValuesEqual(expected, actual) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("column %q = %v", key, expected),
				Actual:   fmt.Sprintf("column %q = %s (%s)", key, value.String(actual), actual.Kind()),
			}
		}
	}

	return nil
}

// buildWhereClause constructs a parameterized WHERE clause. Keys are
// sorted for determinism. Column names must be plain identifiers.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := sortedKeys(where)
	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		if where[key] == nil {
			clauses = append(clauses, fmt.Sprintf("%s IS NULL", key))
			continue
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, where[key])
	}

	return strings.Join(clauses, " AND "), args, nil
}

// formatWhereClause creates a human-readable description of WHERE conditions.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := sortedKeys(where)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, " AND ")
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// stateValuesEqual compares a YAML-decoded expectation with a column value.
// Booleans compare as their 0/1 storage form; whole floats match integers.
func stateValuesEqual(expected any, actual value.Value) bool {
	if f, ok := expected.(float64); ok {
		if i, isInt := actual.(value.Integer); isInt {
			return f == float64(i)
		}
	}
	norm, err := value.Normalize(expected)
	if err != nil {
		return false
	}
	want, err := value.FromDriver(norm)
	if err != nil {
		return false
	}
	return value.Equal(want, actual)
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
// w provides database access for final_state and row_count; nil fails them.
func EvaluateAssertions(ctx context.Context, result *Result, assertions []Assertion, w *toolkit.Wrapper) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertChangeCount:
			err = assertChangeCount(result.Trace, assertion)
		case AssertChangeOrder:
			err = assertChangeOrder(result.Trace, assertion)
		case AssertFinalState, AssertRowCount:
			switch {
			case w == nil:
				err = fmt.Errorf("assertion[%d]: %s requires database access", i, assertion.Type)
			case assertion.Type == AssertFinalState:
				err = assertFinalState(ctx, w, assertion)
			default:
				err = assertRowCount(ctx, w, assertion)
			}
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
