package graph

import (
	"log/slog"
	"sort"

	"github.com/roach88/reflow/internal/ident"
)

// Pattern groups the callbacks bound to one wildcard id pattern and property.
//
// Keys are sorted and Values follow them; a value is a literal or a
// wildcard marker. Two declarations naming the same pattern share one
// Pattern, in declaration order.
type Pattern struct {
	Keys      []string
	Values    []ident.Value
	Callbacks []*Callback
}

// ID rebuilds the wildcard id of the pattern.
func (p *Pattern) ID() ident.ID {
	return ident.Zip(p.Keys, p.Values)
}

type exactMap map[string]map[string][]*Callback

type patternMap map[string]map[string][]*Pattern

// Graph is the immutable dependency graph of a declaration set.
//
// Callbacks lists every declaration, valid or not, so tools can still
// describe a rejected set. The lookup maps and patterns are only filled
// when the whole set is valid.
type Graph struct {
	callbacks      []*Callback
	outputMap      exactMap
	inputMap       exactMap
	outputPatterns patternMap
	inputPatterns  patternMap
	multi          *MultiGraph
	valid          bool
}

// Build parses, validates and indexes decls. Every declaration error goes to
// sink (LogSink when nil). If any error was reported the returned Graph has
// empty maps, so none of its callbacks can be resolved or scheduled.
//
// decls is read in order: a callback's Index is its position, and that
// order decides which pattern is tried first and how cycles are reported.
// Check Valid, or use a Collector as sink, to tell the outcomes apart.
func Build(decls []Declaration, sink ErrorSink) *Graph {
	if sink == nil {
		sink = LogSink
	}
	g := &Graph{
		outputMap:      make(exactMap),
		inputMap:       make(exactMap),
		outputPatterns: make(patternMap),
		inputPatterns:  make(patternMap),
		multi:          NewMultiGraph(),
	}

	v := newValidator(sink)
	for i, d := range decls {
		outputs, errs := splitOutputs(d.Output)
		v.validate(parsedDecl{decl: d, outputs: outputs, outputErr: errs})

		cb := &Callback{
			Declaration:       d,
			Index:             i,
			Outputs:           outputs,
			Inputs:            toBindings(d.Inputs),
			States:            toBindings(d.State),
			FirstSingleOutput: -1,
		}
		if len(outputs) > 0 {
			cb.MatchKeys = outputs[0].ID.KeysWith(ident.Match)
		}
		for j, o := range outputs {
			if !o.MultiValued() {
				cb.FirstSingleOutput = j
				break
			}
		}
		g.callbacks = append(g.callbacks, cb)
	}

	if v.failed {
		slog.Warn("callback graph left empty due to declaration errors", "callbacks", len(decls))
		return g
	}
	g.valid = true

	ph := newPlaceholders()
	for _, cb := range g.callbacks {
		for _, b := range cb.Outputs {
			ph.register(b.ID)
		}
		for _, b := range cb.Inputs {
			ph.register(b.ID)
		}
	}
	ph.finish()

	for _, cb := range g.callbacks {
		for _, out := range cb.Outputs {
			outIDs := []ident.ID{out.ID}
			if out.ID.IsWildcard() {
				outIDs = ph.makeAllIDs(out.ID, ident.ID{})
			}
			for _, outFinal := range outIDs {
				outNode := ident.CombineIDAndProp(outFinal, out.Property)
				g.multi.AddNode(outNode)
				for _, in := range cb.Inputs {
					inIDs := []ident.ID{in.ID}
					if in.ID.IsWildcard() {
						inIDs = ph.makeAllIDs(in.ID, outFinal)
					}
					for _, inFinal := range inIDs {
						g.multi.AddEdge(ident.CombineIDAndProp(inFinal, in.Property), outNode)
					}
				}
			}
			if out.ID.IsWildcard() {
				addPattern(g.outputPatterns, out, cb)
			} else {
				addMap(g.outputMap, out, cb)
			}
		}
		for _, in := range cb.Inputs {
			if in.ID.IsWildcard() {
				addPattern(g.inputPatterns, in, cb)
			} else {
				addMap(g.inputMap, in, cb)
			}
		}
	}

	slog.Debug("callback graph built",
		"callbacks", len(g.callbacks),
		"nodes", len(g.multi.Nodes()))
	return g
}

func addMap(m exactMap, b Binding, cb *Callback) {
	id := b.ID.String()
	props, ok := m[id]
	if !ok {
		props = make(map[string][]*Callback)
		m[id] = props
	}
	props[b.Property] = append(props[b.Property], cb)
}

func addPattern(m patternMap, b Binding, cb *Callback) {
	keys := b.ID.Keys()
	sig := b.ID.KeySignature()
	values := b.ID.Values(keys)

	props, ok := m[sig]
	if !ok {
		props = make(map[string][]*Pattern)
		m[sig] = props
	}
	for _, p := range props[b.Property] {
		if sameValues(p.Values, values) {
			p.Callbacks = append(p.Callbacks, cb)
			return
		}
	}
	props[b.Property] = append(props[b.Property], &Pattern{
		Keys:      keys,
		Values:    values,
		Callbacks: []*Callback{cb},
	})
}

func sameValues(a, b []ident.Value) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Valid reports whether the declarations passed validation.
func (g *Graph) Valid() bool {
	return g.valid
}

// Callbacks returns every declared callback in declaration order, including
// those of an invalid graph.
func (g *Graph) Callbacks() []*Callback {
	return g.callbacks
}

// OutputCallbacks returns the callbacks writing the exact (id, prop).
func (g *Graph) OutputCallbacks(id, prop string) []*Callback {
	return g.outputMap[id][prop]
}

// InputCallbacks returns the callbacks reading the exact (id, prop).
func (g *Graph) InputCallbacks(id, prop string) []*Callback {
	return g.inputMap[id][prop]
}

// OutputPatterns returns the wildcard output patterns for a key signature
// and property, in declaration order.
func (g *Graph) OutputPatterns(signature, prop string) []*Pattern {
	return g.outputPatterns[signature][prop]
}

// InputPatterns returns the wildcard input patterns for a key signature
// and property, in declaration order.
func (g *Graph) InputPatterns(signature, prop string) []*Pattern {
	return g.inputPatterns[signature][prop]
}

// OutputProps lists, sorted, the properties some callback may write on a
// component with this id (exact for plain ids, by key signature otherwise).
func (g *Graph) OutputProps(id ident.ID) []string {
	if id.IsWildcard() {
		return sortedKeys(g.outputPatterns[id.KeySignature()])
	}
	return sortedKeys(g.outputMap[id.String()])
}

// InputProps lists, sorted, the properties some callback may read on a
// component with this id.
func (g *Graph) InputProps(id ident.ID) []string {
	if id.IsWildcard() {
		return sortedKeys(g.inputPatterns[id.KeySignature()])
	}
	return sortedKeys(g.inputMap[id.String()])
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MultiGraph returns the expanded binding graph.
func (g *Graph) MultiGraph() *MultiGraph {
	return g.multi
}

// OverallOrder orders the expanded bindings topologically; a circular
// dependency is a *CycleError.
func (g *Graph) OverallOrder() ([]string, error) {
	return g.multi.OverallOrder()
}
