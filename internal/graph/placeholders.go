package graph

import (
	"sort"

	"github.com/roach88/reflow/internal/ident"
)

// keyPlaceholder collects the literal values seen for one wildcard key
// across all declarations, and how far ALLSMALLER needs them extended.
type keyPlaceholder struct {
	exact  []ident.Value
	expand int
	vals   []ident.Value
}

// placeholders is the observed-value registry used to expand wildcard
// bindings into concrete multigraph nodes.
type placeholders map[string]*keyPlaceholder

func newPlaceholders() placeholders {
	return make(placeholders)
}

func (ph placeholders) register(id ident.ID) {
	if !id.IsWildcard() {
		return
	}
	for _, k := range id.Keys() {
		kp, ok := ph[k]
		if !ok {
			kp = &keyPlaceholder{}
			ph[k] = kp
		}
		v, _ := id.Get(k)
		if m, ok := v.(ident.Marker); ok {
			if m == ident.AllSmaller {
				kp.expand = max(kp.expand, 1)
			}
			continue
		}
		if !containsValue(kp.exact, v) {
			kp.exact = append(kp.exact, v)
		}
	}
}

// finish computes the test values per key: the sorted exact values, padded
// with one synthetic value on each side per level of ALLSMALLER expansion.
// A key with no literal values at all gets synthetic ones.
func (ph placeholders) finish() {
	for _, kp := range ph {
		vals := append([]ident.Value(nil), kp.exact...)
		sort.SliceStable(vals, func(i, j int) bool { return ident.Compare(vals[i], vals[j]) < 0 })
		switch {
		case kp.expand > 0:
			for i := 0; i < kp.expand; i++ {
				if len(kp.exact) > 0 {
					vals = append([]ident.Value{valBefore(vals[0])}, vals...)
					vals = append(vals, valAfter(vals[len(vals)-1]))
				} else {
					vals = append(vals, ident.Number(i))
				}
			}
		case len(kp.exact) == 0:
			vals = append(vals, ident.Number(0))
		}
		kp.vals = vals
	}
}

func valBefore(v ident.Value) ident.Value {
	if n, ok := v.(ident.Number); ok {
		return n - 1
	}
	return ident.Number(0)
}

func valAfter(v ident.Value) ident.Value {
	switch val := v.(type) {
	case ident.Number:
		return val + 1
	case ident.String:
		return val + "z"
	default:
		return ident.String("z")
	}
}

// makeAllIDs expands a wildcard id into every concrete id it could stand for
// given the registry. outFinal is the concrete output id the expansion is
// relative to: MATCH reuses its value and ALLSMALLER takes the values before
// it. Keys are expanded in sorted order.
func (ph placeholders) makeAllIDs(spec, outFinal ident.ID) []ident.ID {
	idList := []map[string]ident.Value{{}}
	for _, k := range spec.Keys() {
		val, _ := spec.Get(k)
		newVals := []ident.Value{val}

		if m, wild := val.(ident.Marker); wild {
			if kp, ok := ph[k]; ok {
				outVal, hasOut := outFinal.Get(k)
				outIndex := -1
				if hasOut {
					outIndex = indexValue(kp.vals, outVal)
				}
				switch {
				case m == ident.AllSmaller:
					if outIndex > 0 {
						newVals = kp.vals[:outIndex]
					}
				case outIndex == -1 || m == ident.All:
					newVals = kp.vals
				default:
					newVals = []ident.Value{outVal}
				}
			}
		}

		next := make([]map[string]ident.Value, 0, len(idList)*len(newVals))
		for _, nv := range newVals {
			for _, partial := range idList {
				cp := make(map[string]ident.Value, len(partial)+1)
				for pk, pv := range partial {
					cp[pk] = pv
				}
				cp[k] = nv
				next = append(next, cp)
			}
		}
		idList = next
	}

	ids := make([]ident.ID, len(idList))
	for i, m := range idList {
		ids[i] = ident.NewWildcard(m)
	}
	return ids
}

func containsValue(vals []ident.Value, v ident.Value) bool {
	return indexValue(vals, v) >= 0
}

func indexValue(vals []ident.Value, v ident.Value) int {
	for i, x := range vals {
		if x == v {
			return i
		}
	}
	return -1
}
