package resolve

import (
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/layout"
)

// LayoutOptions selects which callbacks LayoutCallbacks collects.
type LayoutOptions struct {
	// OutputsOnly skips callbacks found through their inputs.
	OutputsOnly bool
	// RemovedArrayInputsOnly collects, for a removed chunk, the callbacks
	// with a multi-valued input that included a removed component. Their
	// outputs must still be live in NewPaths.
	RemovedArrayInputsOnly bool
	NewPaths               *layout.Index
	// ChunkPath skips input-triggered callbacks whose outputs all live
	// inside the chunk; those run as initial calls by output.
	ChunkPath layout.Path
	// FollowForward also collects callbacks downstream of the collected
	// ones, through the outputs they write.
	FollowForward bool
}

// LayoutCallbacks collects the callbacks affected by a layout chunk: the
// whole tree at hydration, or a subtree that was inserted or removed.
//
// For every component id in chunk it adds the callback writing each of its
// properties as an initial call (unless prevent_initial_call), and unless
// OutputsOnly every callback reading it, tagged INDIRECT. Instances are
// deduplicated by ResolvedID, merging triggers by max urgency.
//
// Callbacks left with only excluded inputs are then dropped: an input is
// excluded when it is missing or only written by a dropped callback.
// Callbacks whose inputs are all multi-valued are always kept.
func LayoutCallbacks(g *graph.Graph, ix *layout.Index, chunk any, opts LayoutOptions) []*Callback {
	c := &collector{ix: ix, byID: make(map[string]int)}

	layout.Crawl(chunk, func(node map[string]any, _ layout.Path) {
		id, ok := layout.NodeID(node)
		if !ok {
			return
		}
		if opts.RemovedArrayInputsOnly && !id.IsWildcard() {
			return
		}

		if !opts.RemovedArrayInputsOnly {
			for _, prop := range g.OutputProps(id) {
				cb, ok := ByOutput(g, ix, id, prop)
				if ok && !cb.Decl.PreventInitialCall {
					cb.InitialCall = true
					c.add(cb)
				}
			}
		}
		if opts.OutputsOnly {
			return
		}

		idStr := id.String()
		for _, prop := range g.InputProps(id) {
			for _, cb := range ByInput(g, ix, id, prop, Indirect) {
				if opts.ChunkPath != nil && allInside(cb.Outputs(ix), opts.ChunkPath) {
					continue
				}
				if opts.RemovedArrayInputsOnly {
					c.addIfArray(cb, idStr, opts.NewPaths)
					continue
				}
				c.add(cb)
			}
		}
	})

	if opts.FollowForward {
		c.followForward(g)
	}
	return c.excludeMissing()
}

type collector struct {
	ix        *layout.Index
	callbacks []*Callback
	byID      map[string]int
}

func (c *collector) add(cb *Callback) {
	if i, ok := c.byID[cb.ResolvedID]; ok {
		c.callbacks[i].Merge(cb)
		return
	}
	c.byID[cb.ResolvedID] = len(c.callbacks)
	c.callbacks = append(c.callbacks, cb)
}

// addIfArray adds cb as an initial call with no triggers when one of its
// multi-valued inputs resolved to idStr and its outputs survive in newPaths.
func (c *collector) addIfArray(cb *Callback, idStr string, newPaths *layout.Index) {
	for i, group := range cb.Bindings(graph.RoleInput, c.ix) {
		if !cb.Decl.Inputs[i].MultiValued() {
			continue
		}
		for _, in := range group {
			if in.ID.String() != idStr {
				continue
			}
			if newPaths != nil && len(cb.Outputs(newPaths)) > 0 {
				cb.InitialCall = true
				cb.ChangedPropIDs = make(map[string]Urgency)
				c.add(cb)
			}
			return
		}
	}
}

func (c *collector) followForward(g *graph.Graph) {
	for i := 0; i < len(c.callbacks); i++ {
		for _, o := range c.callbacks[i].Outputs(c.ix) {
			for _, down := range ByInput(g, c.ix, o.ID, o.Property, Indirect) {
				c.add(down)
			}
		}
	}
}

func (c *collector) excludeMissing() []*Callback {
	callbacks := c.callbacks
	excluded := make(map[string]bool)
	for {
		var kept, dropped []*Callback
		for _, cb := range callbacks {
			if allMultiValued(cb.Decl.Inputs) || hasIncludedInput(cb.Inputs(c.ix), excluded) {
				kept = append(kept, cb)
			} else {
				dropped = append(dropped, cb)
			}
		}
		if len(dropped) == 0 {
			return kept
		}
		callbacks = kept
		for _, cb := range dropped {
			for _, o := range cb.Outputs(c.ix) {
				excluded[o.String()] = true
			}
		}
	}
}

func allMultiValued(bs []graph.Binding) bool {
	for _, b := range bs {
		if !b.MultiValued() {
			return false
		}
	}
	return true
}

func hasIncludedInput(inputs []ConcreteBinding, excluded map[string]bool) bool {
	for _, in := range inputs {
		if !excluded[in.String()] {
			return true
		}
	}
	return false
}

func allInside(outs []ConcreteBinding, prefix layout.Path) bool {
	for _, o := range outs {
		if !o.Path.HasPrefix(prefix) {
			return false
		}
	}
	return true
}
