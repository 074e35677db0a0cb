package ident

import (
	"math"
	"sort"
	"strings"
)

// Value is a sealed interface for wildcard id values.
// Only String, Number, Bool and Marker implement it.
type Value interface {
	identValue()
}

// String is a string literal.
type String string

func (String) identValue() {}

// Number is a numeric literal. JSON numbers are float64 on the wire.
type Number float64

func (Number) identValue() {}

// Bool is a boolean literal.
type Bool bool

func (Bool) identValue() {}

// Marker is a wildcard marker.
type Marker string

func (Marker) identValue() {}

// Wildcard markers.
const (
	All        Marker = "ALL"
	Match      Marker = "MATCH"
	AllSmaller Marker = "ALLSMALLER"
)

// Markers lists the markers by name.
var Markers = map[string]Marker{
	string(All):        All,
	string(Match):      Match,
	string(AllSmaller): AllSmaller,
}

// Multi reports whether the marker makes a binding multi-valued.
func (m Marker) Multi() bool {
	return m == All || m == AllSmaller
}

// IsMarker reports whether v is a wildcard marker.
func IsMarker(v Value) bool {
	_, ok := v.(Marker)
	return ok
}

// IsLiteral reports whether v is a usable literal (finite numbers only).
func IsLiteral(v Value) bool {
	switch val := v.(type) {
	case String, Bool:
		return true
	case Number:
		f := float64(val)
		return !math.IsNaN(f) && !math.IsInf(f, 0)
	default:
		return false
	}
}

// ID is a component identifier: Plain(string) or Wildcard(map).
//
// The zero ID is the empty plain id, which is never valid in a layout.
type ID struct {
	plain string
	dict  map[string]Value
}

// NewPlain creates a plain string id.
func NewPlain(s string) ID {
	return ID{plain: s}
}

// NewWildcard creates a wildcard id. The map is copied.
func NewWildcard(m map[string]Value) ID {
	dict := make(map[string]Value, len(m))
	for k, v := range m {
		dict[k] = v
	}
	return ID{dict: dict}
}

// W is a shorthand for building wildcard ids from alternating key/value
// arguments. Go literals are converted: string, int, float64, bool, Marker.
// Panics on malformed arguments; meant for tests and fixtures.
//
//	ident.W("type", "btn", "index", ident.Match)
func W(kv ...any) ID {
	if len(kv)%2 != 0 {
		panic("ident.W: odd number of arguments")
	}
	dict := make(map[string]Value, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			panic("ident.W: key must be a string")
		}
		v, err := valueFromAny(kv[i+1])
		if err != nil {
			panic("ident.W: " + err.Error())
		}
		dict[k] = v
	}
	return ID{dict: dict}
}

// IsWildcard reports whether the id is a wildcard dictionary.
func (id ID) IsWildcard() bool {
	return id.dict != nil
}

// IsZero reports whether the id is the empty plain id.
func (id ID) IsZero() bool {
	return id.dict == nil && id.plain == ""
}

// Keys returns the wildcard keys in sorted order (nil for plain ids).
func (id ID) Keys() []string {
	if id.dict == nil {
		return nil
	}
	keys := make([]string, 0, len(id.dict))
	for k := range id.dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// KeySignature returns the sorted, comma-joined key list.
func (id ID) KeySignature() string {
	return strings.Join(id.Keys(), ",")
}

// Get returns the value stored at key.
func (id ID) Get(key string) (Value, bool) {
	v, ok := id.dict[key]
	return v, ok
}

// Len returns the number of wildcard keys.
func (id ID) Len() int {
	return len(id.dict)
}

// Values returns the values for keys, in order. Missing keys yield nil.
func (id ID) Values(keys []string) []Value {
	vals := make([]Value, len(keys))
	for i, k := range keys {
		vals[i] = id.dict[k]
	}
	return vals
}

// String returns the canonical form, see Stringify.
func (id ID) String() string {
	return Stringify(id)
}

// Equal reports structural equality.
func (id ID) Equal(other ID) bool {
	if id.IsWildcard() != other.IsWildcard() {
		return false
	}
	if !id.IsWildcard() {
		return id.plain == other.plain
	}
	if len(id.dict) != len(other.dict) {
		return false
	}
	for k, v := range id.dict {
		ov, ok := other.dict[k]
		if !ok || ov != v {
			return false
		}
	}
	return true
}

// MultiValued reports whether the id contains ALL or ALLSMALLER.
func (id ID) MultiValued() bool {
	for _, v := range id.dict {
		if m, ok := v.(Marker); ok && m.Multi() {
			return true
		}
	}
	return false
}

// KeysWith returns the sorted keys whose value is the given marker.
func (id ID) KeysWith(m Marker) []string {
	var keys []string
	for _, k := range id.Keys() {
		if id.dict[k] == m {
			keys = append(keys, k)
		}
	}
	return keys
}

// Zip builds a wildcard id from parallel key and value slices.
func Zip(keys []string, vals []Value) ID {
	dict := make(map[string]Value, len(keys))
	for i, k := range keys {
		dict[k] = vals[i]
	}
	return ID{dict: dict}
}
