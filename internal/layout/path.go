// Package layout indexes the live component tree.
//
// A component tree is any JSON-like value: arrays hold ordered children and
// objects are components exposing props.id (a plain or wildcard id) and
// optionally props.children. Nothing else in a node is inspected.
//
// The Index maps every live id to its Path in the tree and is recomputed
// incrementally when a subtree is replaced. The Tree is the mutable layout
// owned by the scheduler, the only writer.
package layout

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Path locates a node in the tree. Elements are int (array index) or
// string (object key).
type Path []any

// Append returns a new path with elems added. The receiver is not modified.
func (p Path) Append(elems ...any) Path {
	out := make(Path, 0, len(p)+len(elems))
	out = append(out, p...)
	return append(out, elems...)
}

// HasPrefix reports whether prefix is a leading subsequence of p.
func (p Path) HasPrefix(prefix Path) bool {
	if len(prefix) > len(p) {
		return false
	}
	for i := range prefix {
		if p[i] != prefix[i] {
			return false
		}
	}
	return true
}

// Equal reports element-wise equality.
func (p Path) Equal(other Path) bool {
	return len(p) == len(other) && p.HasPrefix(other)
}

// String renders the path as a JSON array.
func (p Path) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, e := range p {
		if i > 0 {
			b.WriteByte(',')
		}
		switch v := e.(type) {
		case int:
			b.WriteString(strconv.Itoa(v))
		case string:
			enc, _ := json.Marshal(v)
			b.Write(enc)
		}
	}
	b.WriteByte(']')
	return b.String()
}

// UnmarshalJSON decodes array indexes back into ints.
func (p *Path) UnmarshalJSON(data []byte) error {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(Path, len(raw))
	for i, e := range raw {
		if f, ok := e.(float64); ok {
			out[i] = int(f)
			continue
		}
		out[i] = e
	}
	*p = out
	return nil
}
