package harness

import (
	"github.com/roach88/sqlitekit/internal/value"
)

// Trace event types.
const (
	EventStep   = "step"
	EventChange = "change"
)

// TraceEvent is one entry in a scenario trace: either a flow step outcome
// or a committed change delivered to the scenario's subscriber.
type TraceEvent struct {
	Type string `json:"type"` // "step" or "change"
	Seq  int64  `json:"seq"`

	// Step fields.
	Kind         string        `json:"kind,omitempty"` // exec, tx, query, page
	Error        string        `json:"error,omitempty"`
	RowsAffected *int64        `json:"rows_affected,omitempty"`
	Rows         *int          `json:"rows,omitempty"`
	HasMore      *bool         `json:"has_more,omitempty"`
	Cursor       []value.Value `json:"cursor,omitempty"`

	// Change fields.
	Table     string        `json:"table,omitempty"`
	Operation string        `json:"operation,omitempty"`
	Rowid     *int64        `json:"rowid,omitempty"`
	Key       []value.Value `json:"key,omitempty"`
	Timestamp string        `json:"timestamp,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace holds step outcomes and committed changes in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Changes returns the change events of the trace in order.
func (r *Result) Changes() []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventChange {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Result) addStep(ev TraceEvent) {
	ev.Type = EventStep
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

func (r *Result) addChange(ev TraceEvent) {
	ev.Type = EventChange
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}
