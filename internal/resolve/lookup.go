package resolve

import (
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
)

// ByOutput returns the callback writing (id, prop). For wildcard ids the
// output patterns are scanned in declaration order and the first match wins.
//
// Validation rejects overlapping outputs, so at most one pattern should
// match; the order only matters for a graph built from declarations that
// validation let through by mistake. The result has no triggers and no
// priority yet.
func ByOutput(g *graph.Graph, ix *layout.Index, id ident.ID, prop string) (*Callback, bool) {
	if !id.IsWildcard() {
		cbs := g.OutputCallbacks(id.String(), prop)
		if len(cbs) == 0 {
			return nil, false
		}
		cb := newCallback(cbs[0], nil, "")
		cb.settle(ix)
		return cb, true
	}


	keys := id.Keys()
	vals := id.Values(keys)
	for _, p := range g.OutputPatterns(id.KeySignature(), prop) {
		if !match(keys, vals, p.Values, nil) {
			continue
		}
		ref := &ident.Ref{Keys: keys, Vals: vals, PatternVals: p.Values}
		cb := newCallback(p.Callbacks[0], ref, anyVals(p.Values, vals))
		cb.settle(ix)
		return cb, true
	}
	return nil, false
}

// ByInput returns the callbacks reading (id, prop), one instance per distinct
// MATCH substitution found among the callback's live outputs. A callback
// without MATCH keys yields a single instance, and only when at least one of
// its outputs is live. Each instance records the trigger with urgency and
// gets its priority computed.
func ByInput(g *graph.Graph, ix *layout.Index, id ident.ID, prop string, urgency Urgency) []*Callback {
	return byInput(g, ix, id, prop, urgency, true)
}

func byInput(g *graph.Graph, ix *layout.Index, id ident.ID, prop string, urgency Urgency, withPriority bool) []*Callback {
	var matches []*Callback

	if !id.IsWildcard() {
		for _, cb := range g.InputCallbacks(id.String(), prop) {
			matches = addAllResolvedFromOutputs(ix, cb, nil, matches)
		}
	} else {
		keys := id.Keys()
		vals := id.Values(keys)
		for _, p := range g.InputPatterns(id.KeySignature(), prop) {
			if !match(keys, vals, p.Values, nil) {
				continue
			}
			ref := &ident.Ref{Keys: keys, Vals: vals, PatternVals: p.Values}
			for _, cb := range p.Callbacks {
				matches = addAllResolvedFromOutputs(ix, cb, ref, matches)
			}
		}
	}

	if urgency == 0 {
		urgency = Direct
	}
	idAndProp := ident.CombineIDAndProp(id, prop)
	for _, m := range matches {
		m.settle(ix)
		m.ChangedPropIDs[idAndProp] = urgency
		if withPriority {
			m.Priority = Priority(g, ix, m)
		}
	}
	return matches
}

func addAllResolvedFromOutputs(ix *layout.Index, cb *graph.Callback, ref *ident.Ref, matches []*Callback) []*Callback {
	if len(cb.MatchKeys) == 0 {
		rc := newCallback(cb, ref, "")
		if len(rc.Outputs(ix)) > 0 {
			matches = append(matches, rc)
		}
		return matches
	}

	if cb.FirstSingleOutput >= 0 {
		out := cb.Outputs[cb.FirstSingleOutput]
		return addResolvedFromOutputs(cb, out, resolveBinding(ix, out, ref), matches)
	}

	// Every output is multi-valued: keep one live output per combination
	// of MATCH values so each invocation is created once.
	seen := make(map[string]bool)
	for _, out := range cb.Outputs {
		var set []ConcreteBinding
		for _, c := range resolveBinding(ix, out, ref) {
			key := anyVals(matchPattern(len(cb.MatchKeys)), c.ID.Values(cb.MatchKeys))
			if seen[key] {
				continue
			}
			seen[key] = true
			set = append(set, c)
		}
		matches = addResolvedFromOutputs(cb, out, set, matches)
	}
	return matches
}

func matchPattern(n int) []ident.Value {
	p := make([]ident.Value, n)
	for i := range p {
		p[i] = ident.Match
	}
	return p
}

// addResolvedFromOutputs creates one instance per distinct substitution
// among outs, using each output's values as the reference.
func addResolvedFromOutputs(cb *graph.Callback, outPattern graph.Binding, outs []ConcreteBinding, matches []*Callback) []*Callback {
	keys := outPattern.ID.Keys()
	patternVals := outPattern.ID.Values(keys)
	found := make(map[string]bool)
	for _, o := range outs {
		vals := o.ID.Values(keys)
		ref := &ident.Ref{Keys: keys, Vals: vals, PatternVals: patternVals}
		rc := newCallback(cb, ref, anyVals(patternVals, vals))
		if found[rc.ResolvedID] {
			continue
		}
		found[rc.ResolvedID] = true
		matches = append(matches, rc)
	}
	return matches
}
