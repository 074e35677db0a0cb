package resolve

import (
	"strconv"
	"strings"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/layout"
)

// maxPriorityDigit caps each level so it fits one base-36 digit.
const maxPriorityDigit = 35

// Priority computes the ordering key of cb.
//
// Starting from cb's live outputs, it walks breadth-first through the
// callbacks reading them, recording how many callbacks each level reaches.
// Outputs already visited are not walked again, which bounds wildcard
// self-loops. The key is the number of levels followed by each level's
// fan-out, every number capped at 35 and written as one base-36 digit.
func Priority(g *graph.Graph, ix *layout.Index, cb *Callback) string {
	callbacks := []*Callback{cb}
	touched := make(map[string]bool)
	var levels []int

	for len(callbacks) > 0 {
		var outputs []ConcreteBinding
		for _, c := range callbacks {
			for _, o := range c.Outputs(ix) {
				key := o.String()
				if touched[key] {
					continue
				}
				touched[key] = true
				outputs = append(outputs, o)
			}
		}

		callbacks = callbacks[:0:0]
		for _, o := range outputs {
			callbacks = append(callbacks, byInput(g, ix, o.ID, o.Property, Indirect, false)...)
		}
		if len(callbacks) > 0 {
			levels = append(levels, len(callbacks))
		}
	}

	var b strings.Builder
	b.WriteString(digit36(len(levels)))
	for _, n := range levels {
		b.WriteString(digit36(n))
	}
	return b.String()
}

func digit36(n int) string {
	return strconv.FormatInt(int64(min(n, maxPriorityDigit)), 36)
}

// ComparePriority orders callbacks for execution: the lexicographically
// smaller priority runs first. Ties keep their relative order when used with
// a stable sort.
func ComparePriority(a, b *Callback) int {
	return strings.Compare(a.Priority, b.Priority)
}
