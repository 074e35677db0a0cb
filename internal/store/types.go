package store

import "github.com/roach88/reflow/internal/layout"

// Outcome is how a callback instance left the scheduler.
type Outcome string

const (
	// OutcomeCompleted: outputs were applied.
	OutcomeCompleted Outcome = "completed"
	// OutcomePrevented: the callback prevented the update or changed nothing.
	OutcomePrevented Outcome = "prevented"
	// OutcomeNull: every input was missing, so nothing ran.
	OutcomeNull Outcome = "null"
	// OutcomeStored: the result arrived after its targets left the layout.
	OutcomeStored Outcome = "stored"
	// OutcomeError: the callback failed.
	OutcomeError Outcome = "error"
	// OutcomeSuperseded: a newer request for the same instance replaced it.
	OutcomeSuperseded Outcome = "superseded"
	// OutcomePruned: dropped before running, because its outputs vanished
	// or nothing upstream changed its inputs.
	OutcomePruned Outcome = "pruned"
)

// Update sources other than callbacks, which use their resolved id.
const (
	SourceUser    = "user"
	SourceHistory = "history"
)

// Run is one row of callback_runs.
type Run struct {
	Seq        int64
	GroupID    string
	ResolvedID string
	Outcome    Outcome
	Priority   string
	Triggers   []string
	Error      string
}

// Update is one row of prop_updates.
type Update struct {
	Seq      int64
	GroupID  string
	Source   string
	ItemID   string
	ItemPath layout.Path
	Props    map[string]any
	// PropsHash is computed by WriteUpdate.
	PropsHash string
}
