package harness

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sqlitekit/internal/keyset"
	"github.com/roach88/sqlitekit/internal/toolkit"
)

// Scenario defines a conformance scenario: a schema, a flow of operations
// against it and assertions over the resulting trace and final rows.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Observe lists the tables whose committed changes are traced.
	Observe []string `yaml:"observe,omitempty"`

	// Setup statements run in one transaction before observation starts.
	Setup []string `yaml:"setup,omitempty"`

	// Flow contains the operations under test, run in order.
	Flow []FlowStep `yaml:"flow"`

	// Assertions validate the final trace and state.
	Assertions []Assertion `yaml:"assertions"`
}

// Flow step kinds.
const (
	KindExec  = "exec"
	KindTx    = "tx"
	KindQuery = "query"
	KindPage  = "page"
)

// FlowStep is one operation. Exactly one of Exec, Tx, Query and Page is set.
type FlowStep struct {
	Exec  *toolkit.Statement  `yaml:"exec,omitempty"`
	Tx    []toolkit.Statement `yaml:"tx,omitempty"`
	Query *toolkit.Statement  `yaml:"query,omitempty"`
	Page  *PageStep           `yaml:"page,omitempty"`

	// Expect checks the step outcome. Nil expects success.
	Expect *ExpectClause `yaml:"expect,omitempty"`
}

// Kind names the operation the step runs, or "" when none or several are set.
func (s FlowStep) Kind() string {
	var kinds []string
	if s.Exec != nil {
		kinds = append(kinds, KindExec)
	}
	if s.Tx != nil {
		kinds = append(kinds, KindTx)
	}
	if s.Query != nil {
		kinds = append(kinds, KindQuery)
	}
	if s.Page != nil {
		kinds = append(kinds, KindPage)
	}
	if len(kinds) != 1 {
		return ""
	}
	return kinds[0]
}

// PageStep fetches one keyset page.
type PageStep struct {
	Query  string `yaml:"query"`
	Values []any  `yaml:"values,omitempty"`

	// Keyset uses the column list syntax of keyset.ParseColumns,
	// e.g. "category,score:desc,id".
	Keyset string `yaml:"keyset"`
	Size   int    `yaml:"size"`

	After  []any `yaml:"after,omitempty"`
	Before []any `yaml:"before,omitempty"`
}

// ExpectClause specifies the expected step outcome. Unset fields are not
// checked.
type ExpectClause struct {
	// Error is the expected toolkit error code, e.g. SQLITE_2067.
	// Empty expects success.
	Error string `yaml:"error,omitempty"`

	// RowsAffected is checked for exec steps and summed over tx steps.
	RowsAffected *int64 `yaml:"rows_affected,omitempty"`

	// Rows is checked for query and page steps.
	Rows *int `yaml:"rows,omitempty"`

	// HasMore is checked for page steps.
	HasMore *bool `yaml:"has_more,omitempty"`
}

// Assertion validates the trace or the final database state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "change_count": count changes matching Table and Operation
	// - "change_order": check Changes appear in order
	// - "final_state": query one row and verify expected values
	// - "row_count": count rows in Table
	Type string `yaml:"type"`

	// Table filters change_count, and names the table for final_state and
	// row_count.
	Table string `yaml:"table,omitempty"`

	// Operation filters change_count: insert, update or delete.
	Operation string `yaml:"operation,omitempty"`

	// Count is the expected number (change_count, row_count).
	Count int `yaml:"count,omitempty"`

	// Changes is the expected order for change_order, each entry written
	// "operation table", e.g. "insert posts".
	Changes []string `yaml:"changes,omitempty"`

	// Where selects the row for final_state. All fields must match.
	Where map[string]any `yaml:"where,omitempty"`

	// Expect contains expected column values for final_state.
	// Subset match: only listed columns are checked.
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertChangeCount = "change_count"
	AssertChangeOrder = "change_order"
	AssertFinalState  = "final_state"
	AssertRowCount    = "row_count"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict field validation catches typos like "assertion:" vs "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}

	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, stmt := range s.Setup {
		if stmt == "" {
			return fmt.Errorf("setup[%d]: statement is empty", i)
		}
	}

	for i, step := range s.Flow {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step FlowStep) error {
	switch step.Kind() {
	case KindExec:
		if step.Exec.Query == "" {
			return fmt.Errorf("flow[%d]: exec query is required", index)
		}
	case KindTx:
		for j, stmt := range step.Tx {
			if stmt.Query == "" {
				return fmt.Errorf("flow[%d].tx[%d]: query is required", index, j)
			}
		}
	case KindQuery:
		if step.Query.Query == "" {
			return fmt.Errorf("flow[%d]: query is required", index)
		}
	case KindPage:
		if step.Page.Query == "" {
			return fmt.Errorf("flow[%d]: page query is required", index)
		}
		if _, err := keyset.ParseColumns(step.Page.Keyset); err != nil {
			return fmt.Errorf("flow[%d]: page keyset: %w", index, err)
		}
		if step.Page.Size < 1 {
			return fmt.Errorf("flow[%d]: page size must be at least 1", index)
		}
	default:
		return fmt.Errorf("flow[%d]: exactly one of exec, tx, query or page is required", index)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertChangeCount:
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for change_count", index)
		}
		if a.Operation != "" && !validOperation(a.Operation) {
			return fmt.Errorf("assertions[%d]: unknown operation %q", index, a.Operation)
		}
	case AssertChangeOrder:
		if len(a.Changes) == 0 {
			return fmt.Errorf("assertions[%d]: changes list is required for change_order", index)
		}
		for _, c := range a.Changes {
			if _, _, err := parseChangeRef(c); err != nil {
				return fmt.Errorf("assertions[%d]: %w", index, err)
			}
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertRowCount:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for row_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for row_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
