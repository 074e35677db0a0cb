package scheduler

import (
	"fmt"

	"github.com/roach88/reflow/internal/ident"
)

// DefaultHistorySize is the number of user edits kept for undo.
const DefaultHistorySize = 100

// HistoryMove selects a history operation.
type HistoryMove int

const (
	// Undo restores the props before the last edit; Redo can re-apply it.
	Undo HistoryMove = iota + 1
	// Redo re-applies the last undone edit.
	Redo
	// Revert restores the props before the last edit and forgets the edit.
	Revert
)

// String returns the move as ParseHistoryMove accepts it.
func (m HistoryMove) String() string {
	switch m {
	case Undo:
		return "UNDO"
	case Redo:
		return "REDO"
	case Revert:
		return "REVERT"
	default:
		return fmt.Sprintf("HistoryMove(%d)", int(m))
	}
}

// ParseHistoryMove accepts UNDO, REDO and REVERT.
func ParseHistoryMove(s string) (HistoryMove, error) {
	switch s {
	case "UNDO":
		return Undo, nil
	case "REDO":
		return Redo, nil
	case "REVERT":
		return Revert, nil
	}
	return 0, fmt.Errorf("unknown history move %q", s)
}

// HistoryEntry is one user edit: the props of one component before and
// after it.
type HistoryEntry struct {
	ID     ident.ID
	Before map[string]any
	After  map[string]any
}

// History is a bounded undo/redo deque. The oldest edit is dropped once the
// limit is reached.
//
// Only user edits are recorded. Props written by callbacks are not
// snapshotted: undoing an edit restores the edited component, and the
// callbacks it triggers recompute everything downstream of it. History
// moves are not recorded either, so an undo cannot itself be undone; redo
// covers that.
type History struct {
	limit  int
	past   []HistoryEntry
	future []HistoryEntry
}

// NewHistory creates a history holding at most limit edits; limit <= 0
// keeps none.
func NewHistory(limit int) *History {
	return &History{limit: limit}
}

// Push records a new edit and clears the redo stack.
func (h *History) Push(e HistoryEntry) {
	h.future = nil
	if h.limit <= 0 {
		return
	}
	h.past = append(h.past, e)
	if len(h.past) > h.limit {
		h.past = h.past[len(h.past)-h.limit:]
	}
}

// Undo pops the last edit onto the redo stack.
func (h *History) Undo() (HistoryEntry, bool) {
	e, ok := h.popPast()
	if ok {
		h.future = append(h.future, e)
	}
	return e, ok
}

// Redo pops the last undone edit back onto the undo stack.
func (h *History) Redo() (HistoryEntry, bool) {
	if len(h.future) == 0 {
		return HistoryEntry{}, false
	}
	e := h.future[len(h.future)-1]
	h.future = h.future[:len(h.future)-1]
	h.past = append(h.past, e)
	return e, true
}

// Revert pops the last edit and discards it.
func (h *History) Revert() (HistoryEntry, bool) {
	return h.popPast()
}

func (h *History) popPast() (HistoryEntry, bool) {
	if len(h.past) == 0 {
		return HistoryEntry{}, false
	}
	e := h.past[len(h.past)-1]
	h.past = h.past[:len(h.past)-1]
	return e, true
}

// Len returns the sizes of the undo and redo stacks.
func (h *History) Len() (past, future int) {
	return len(h.past), len(h.future)
}
