package harness

import "github.com/roach88/reflow/internal/store"

// Trace event types.
const (
	EventRun    = "run"
	EventUpdate = "update"
)

// TraceEvent is one journal entry: a callback run or an applied update.
type TraceEvent struct {
	Type    string `json:"type"`
	Seq     int64  `json:"seq"`
	GroupID string `json:"group_id"`

	// Run fields.
	ResolvedID string `json:"resolved_id,omitempty"`
	Outcome    string `json:"outcome,omitempty"`
	Error      string `json:"error,omitempty"`

	// Update fields.
	Source string         `json:"source,omitempty"`
	ItemID string         `json:"item_id,omitempty"`
	Props  map[string]any `json:"props,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every assertion held.
	Pass bool `json:"pass"`

	// Trace holds every run and update in journal order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Reported holds the errors the scheduler reported while running, as
	// "kind resolvedID: message".
	Reported []string `json:"reported,omitempty"`

	// Layout is the final component tree.
	Layout any `json:"layout"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:     true,
		Trace:    []TraceEvent{},
		Errors:   []string{},
		Reported: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddRun adds a journaled callback run to the trace.
func (r *Result) AddRun(run store.Run) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:       EventRun,
		Seq:        run.Seq,
		GroupID:    run.GroupID,
		ResolvedID: run.ResolvedID,
		Outcome:    string(run.Outcome),
		Error:      run.Error,
	})
}

// AddUpdate adds a journaled prop update to the trace.
func (r *Result) AddUpdate(u store.Update) {
	r.Trace = append(r.Trace, TraceEvent{
		Type:    EventUpdate,
		Seq:     u.Seq,
		GroupID: u.GroupID,
		Source:  u.Source,
		ItemID:  u.ItemID,
		Props:   u.Props,
	})
}
