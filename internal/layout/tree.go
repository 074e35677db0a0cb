package layout

import (
	"fmt"
)

// Tree is a mutable component tree.
//
// Tree is not safe for concurrent use: the scheduler loop is its only writer.
type Tree struct {
	root any
}

// NewTree wraps a decoded JSON layout.
func NewTree(root any) *Tree {
	return &Tree{root: root}
}

// Root returns the whole layout.
func (t *Tree) Root() any {
	return t.root
}

// Get returns the value at p.
func (t *Tree) Get(p Path) (any, bool) {
	cur := t.root
	for _, elem := range p {
		switch key := elem.(type) {
		case int:
			arr, ok := cur.([]any)
			if !ok || key < 0 || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		case string:
			obj, ok := cur.(map[string]any)
			if !ok {
				return nil, false
			}
			cur, ok = obj[key]
			if !ok {
				return nil, false
			}
		default:
			return nil, false
		}
	}
	return cur, true
}

// Prop returns props[name] of the component at p.
func (t *Tree) Prop(p Path, name string) (any, bool) {
	node, ok := t.Get(p)
	if !ok {
		return nil, false
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, false
	}
	props, ok := obj["props"].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := props[name]
	return v, ok
}

// SetProps merges props into the component at p and returns the previous
// values of the written keys. Keys that were absent map to nil.
func (t *Tree) SetProps(p Path, props map[string]any) (map[string]any, error) {
	node, ok := t.Get(p)
	if !ok {
		return nil, fmt.Errorf("no component at %s", p)
	}
	obj, ok := node.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value at %s is not a component", p)
	}
	current, ok := obj["props"].(map[string]any)
	if !ok {
		current = make(map[string]any, len(props))
		obj["props"] = current
	}

	previous := make(map[string]any, len(props))
	for k, v := range props {
		previous[k] = current[k]
		current[k] = v
	}
	return previous, nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	return &Tree{root: CloneValue(t.root)}
}

// CloneValue deep-copies a JSON-like value.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			out[k] = CloneValue(e)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = CloneValue(e)
		}
		return out
	default:
		return v
	}
}
