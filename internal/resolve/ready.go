package resolve

import (
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
)

// Ready returns the candidates none of whose inputs is about to change.
//
// An input is about to change when it is an output of an active callback or,
// when g is non-nil, an output of any callback downstream of one. Inputs that
// are also the candidate's own outputs do not count.
//
// active is normally every requested and executing callback, candidates
// included. Passing a nil graph limits the check to direct outputs, which
// is cheaper but lets a callback run before an upstream chain settles.
// Candidates keep their order in the result.
func Ready(ix *layout.Index, candidates, active []*Callback, g *graph.Graph) []*Callback {
	if len(candidates) == 0 {
		return nil
	}

	pending := make(map[string]bool)
	var frontier []ConcreteBinding
	for _, cb := range active {
		for _, o := range cb.Outputs(ix) {
			key := o.String()
			if !pending[key] {
				pending[key] = true
				frontier = append(frontier, o)
			}
		}
	}
	if g != nil {
		for len(frontier) > 0 {
			var next []ConcreteBinding
			for _, o := range frontier {
				for _, down := range byInput(g, ix, o.ID, o.Property, Indirect, false) {
					for _, do := range down.Outputs(ix) {
						key := do.String()
						if !pending[key] {
							pending[key] = true
							next = append(next, do)
						}
					}
				}
			}
			frontier = next
		}
	}

	var ready []*Callback
	for _, cb := range candidates {
		own := make(map[string]bool)
		for _, o := range cb.Outputs(ix) {
			own[o.String()] = true
		}
		blocked := false
		for _, in := range cb.Inputs(ix) {
			key := in.String()
			if !own[key] && pending[key] {
				blocked = true
				break
			}
		}
		if !blocked {
			ready = append(ready, cb)
		}
	}
	return ready
}

// Prune checks callbacks against the current index.
//
// A callback is removed when none of its outputs is live or when its live
// output count moved away from the count it was resolved with (the declared
// count, unless an output is multi-valued). If some outputs are still live
// it is also returned in added, as a copy whose triggers are limited to ids
// still in the tree and whose expected count is the live one. A callback is
// therefore re-added once per change of shape, not on every call.
func Prune(ix *layout.Index, cbs []*Callback) (added, removed []*Callback) {
	for _, cb := range cbs {
		live := len(cb.Outputs(ix))
		if live > 0 && live == cb.outputCount {
			continue
		}
		removed = append(removed, cb)
		if live == 0 {
			continue
		}
		kept := cb.Clone()
		kept.outputCount = live
		for trigger := range kept.ChangedPropIDs {
			id, _, err := ident.SplitIDAndProp(trigger)
			if err != nil || !ix.Has(id) {
				delete(kept.ChangedPropIDs, trigger)
			}
		}
		added = append(added, kept)
	}
	return added, removed
}
