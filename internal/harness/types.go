package harness

import "github.com/roach88/tinker/internal/state"

// TraceEvent is one journaled event of a run.
type TraceEvent struct {
	Seq     int64            `json:"seq"`
	Kind    string           `json:"kind"`
	Payload map[string]any   `json:"payload,omitempty"`
	Entries []state.LogEntry `json:"entries,omitempty"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expectation held.
	Pass bool `json:"pass"`

	// Session is the journal session id of the run.
	Session string `json:"session"`

	// Trace holds every applied event in seq order.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expectation failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the settled state after the last step.
	Final state.State `json:"-"`
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
