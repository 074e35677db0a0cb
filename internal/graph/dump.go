package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Dump renders the graph as deterministic text.
func (g *Graph) Dump() string {
	var b strings.Builder

	fmt.Fprintf(&b, "valid: %t\n", g.valid)
	b.WriteString("callbacks:\n")
	for _, cb := range g.callbacks {
		fmt.Fprintf(&b, "  [%d] %s\n", cb.Index, cb.Output)
		fmt.Fprintf(&b, "      inputs: %s\n", joinBindings(cb.Inputs))
		if len(cb.States) > 0 {
			fmt.Fprintf(&b, "      state: %s\n", joinBindings(cb.States))
		}
		if len(cb.MatchKeys) > 0 {
			fmt.Fprintf(&b, "      match: %s\n", strings.Join(cb.MatchKeys, ","))
		}
		if cb.Clientside() {
			fmt.Fprintf(&b, "      clientside: %s.%s\n", cb.ClientsideFunction.Namespace, cb.ClientsideFunction.FunctionName)
		}
		if cb.PreventInitialCall {
			b.WriteString("      prevent_initial_call\n")
		}
	}

	dumpExact(&b, "outputs", g.outputMap)
	dumpPatterns(&b, "output patterns", g.outputPatterns)
	dumpExact(&b, "inputs", g.inputMap)
	dumpPatterns(&b, "input patterns", g.inputPatterns)

	b.WriteString("edges:\n")
	for _, n := range g.multi.Nodes() {
		for _, m := range g.multi.Successors(n) {
			fmt.Fprintf(&b, "  %s -> %s\n", n, m)
		}
	}
	return b.String()
}

func joinBindings(bs []Binding) string {
	parts := make([]string, len(bs))
	for i, x := range bs {
		parts[i] = x.String()
	}
	return strings.Join(parts, ", ")
}

func callbackIndexes(cbs []*Callback) string {
	parts := make([]string, len(cbs))
	for i, cb := range cbs {
		parts[i] = fmt.Sprint(cb.Index)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func dumpExact(b *strings.Builder, title string, m exactMap) {
	fmt.Fprintf(b, "%s:\n", title)
	ids := sortedKeys(m)
	for _, id := range ids {
		for _, prop := range sortedKeys(m[id]) {
			fmt.Fprintf(b, "  %s.%s -> %s\n", id, prop, callbackIndexes(m[id][prop]))
		}
	}
}

func dumpPatterns(b *strings.Builder, title string, m patternMap) {
	fmt.Fprintf(b, "%s:\n", title)
	sigs := make([]string, 0, len(m))
	for sig := range m {
		sigs = append(sigs, sig)
	}
	sort.Strings(sigs)
	for _, sig := range sigs {
		for _, prop := range sortedKeys(m[sig]) {
			for _, p := range m[sig][prop] {
				fmt.Fprintf(b, "  %s.%s -> %s\n", p.ID(), prop, callbackIndexes(p.Callbacks))
			}
		}
	}
}
