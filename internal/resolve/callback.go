package resolve

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
)

// Urgency tells how a trigger reached a callback. DIRECT beats INDIRECT
// when the same trigger is recorded twice.
type Urgency int

const (
	Indirect Urgency = 1
	Direct   Urgency = 2
)

// String returns DIRECT, INDIRECT or NONE.
func (u Urgency) String() string {
	switch u {
	case Direct:
		return "DIRECT"
	case Indirect:
		return "INDIRECT"
	default:
		return "NONE"
	}
}

// ConcreteBinding is a binding resolved to a live component.
type ConcreteBinding struct {
	ID       ident.ID
	Property string
	Path     layout.Path
}

// String renders "id.prop".
func (b ConcreteBinding) String() string {
	return ident.CombineIDAndProp(b.ID, b.Property)
}

// Callback is a declared callback bound to one MATCH substitution.
//
// ChangedPropIDs collects the triggers of the pending request; merging two
// requests keeps the stronger urgency per trigger. ByInput computes
// Priority; the scheduler sets ExecutionGroup. A Callback is not safe for
// concurrent use; the scheduler hands executors a Clone.
type Callback struct {
	Decl *graph.Callback

	// AnyVals is the JSON list of MATCH values, or "".
	AnyVals string
	// ResolvedID identifies the instance: the output declaration plus AnyVals.
	ResolvedID string
	// ChangedPropIDs maps each "id.prop" trigger to its urgency.
	ChangedPropIDs map[string]Urgency
	Priority       string
	InitialCall    bool
	ExecutionGroup string

	ref *ident.Ref
	// outputCount is the concrete output count Prune expects: the declared
	// count, or for multi-valued outputs the live count when the instance
	// was resolved or last pruned.
	outputCount int
}

func newCallback(decl *graph.Callback, ref *ident.Ref, anyVals string) *Callback {
	return &Callback{
		Decl:           decl,
		AnyVals:        anyVals,
		ResolvedID:     decl.Output + anyVals,
		ChangedPropIDs: make(map[string]Urgency),
		ref:            ref,
		outputCount:    len(decl.Outputs),
	}
}

// settle records the live output count of an instance with a multi-valued
// output.
func (c *Callback) settle(ix *layout.Index) {
	for _, o := range c.Decl.Outputs {
		if o.MultiValued() {
			c.outputCount = len(c.Outputs(ix))
			return
		}
	}
}

// Clone copies the callback, including its trigger map.
func (c *Callback) Clone() *Callback {
	out := *c
	out.ChangedPropIDs = make(map[string]Urgency, len(c.ChangedPropIDs))
	for k, v := range c.ChangedPropIDs {
		out.ChangedPropIDs[k] = v
	}
	return &out
}

// Merge folds a duplicate request for the same instance into c: triggers
// keep the stronger urgency and an initial call stays an initial call.
func (c *Callback) Merge(other *Callback) {
	mergeMax(c.ChangedPropIDs, other.ChangedPropIDs)
	if other.InitialCall {
		c.InitialCall = true
	}
}

// Bindings expands every declared binding of role against ix. The result
// has one entry per declared binding; single-valued bindings yield at most
// one concrete binding.
func (c *Callback) Bindings(role graph.Role, ix *layout.Index) [][]ConcreteBinding {
	decl := c.Decl.Bindings(role)
	out := make([][]ConcreteBinding, len(decl))
	for i, b := range decl {
		out[i] = resolveBinding(ix, b, c.ref)
	}
	return out
}

// Outputs returns the flattened concrete outputs.
func (c *Callback) Outputs(ix *layout.Index) []ConcreteBinding {
	return Flatten(c.Bindings(graph.RoleOutput, ix))
}

// Inputs returns the flattened concrete inputs.
func (c *Callback) Inputs(ix *layout.Index) []ConcreteBinding {
	return Flatten(c.Bindings(graph.RoleInput, ix))
}

// State returns the flattened concrete state.
func (c *Callback) State(ix *layout.Index) []ConcreteBinding {
	return Flatten(c.Bindings(graph.RoleState, ix))
}

// Triggers returns the ChangedPropIDs keys, sorted.
func (c *Callback) Triggers() []string {
	keys := make([]string, 0, len(c.ChangedPropIDs))
	for k := range c.ChangedPropIDs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MaxUrgency returns the strongest recorded trigger.
func (c *Callback) MaxUrgency() Urgency {
	var u Urgency
	for _, v := range c.ChangedPropIDs {
		u = max(u, v)
	}
	return u
}

// Flatten concatenates grouped bindings.
func Flatten(groups [][]ConcreteBinding) []ConcreteBinding {
	var out []ConcreteBinding
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// resolveBinding expands one binding. Plain ids resolve to their path if
// present. Wildcard ids scan the bucket of their key signature and keep the
// entries the pattern matches relative to ref.
func resolveBinding(ix *layout.Index, b graph.Binding, ref *ident.Ref) []ConcreteBinding {
	if !b.ID.IsWildcard() {
		p, ok := ix.Lookup(b.ID)
		if !ok {
			return nil
		}
		return []ConcreteBinding{{ID: b.ID, Property: b.Property, Path: p}}
	}

	keys := b.ID.Keys()
	patternVals := b.ID.Values(keys)
	var out []ConcreteBinding
	for _, e := range ix.Entries(b.ID.KeySignature()) {
		if !match(keys, e.Values, patternVals, ref) {
			continue
		}
		out = append(out, ConcreteBinding{ID: e.ID(), Property: b.Property, Path: e.Path})
	}
	return out
}

// match wraps ident.MatchValues. An invalid pattern pair cannot pass graph
// validation, so it is logged and treated as no match.
func match(keys []string, vals, patternVals []ident.Value, ref *ident.Ref) bool {
	ok, err := ident.MatchValues(keys, vals, patternVals, ref)
	if err != nil {
		slog.Error("wildcard match failed", "keys", strings.Join(keys, ","), "error", err)
		return false
	}
	return ok
}

// anyVals renders the values bound to MATCH keys as a JSON list, or "".
func anyVals(patternVals, vals []ident.Value) string {
	var parts []string
	for i, p := range patternVals {
		if p == ident.Match {
			parts = append(parts, ident.LiteralJSON(vals[i]))
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// mergeMax merges src into dst keeping the stronger urgency per trigger.
func mergeMax(dst, src map[string]Urgency) {
	for k, v := range src {
		if v > dst[k] {
			dst[k] = v
		}
	}
}
