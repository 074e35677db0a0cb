package ident

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ParseError reports a malformed wildcard id string.
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed wildcard id %q: %v", e.Input, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Stringify returns the canonical string form of an id.
//
// Plain ids map to themselves. Wildcard ids map to {"k1":v1,"k2":v2} with
// keys sorted, literals as JSON and markers as their bare name.
func Stringify(id ID) string {
	if !id.IsWildcard() {
		return id.plain
	}
	return writeDict(id, func(buf *bytes.Buffer, m Marker) {
		buf.WriteString(string(m))
	})
}

// MarshalJSON emits the wire form: markers as single-element arrays.
func (id ID) MarshalJSON() ([]byte, error) {
	if !id.IsWildcard() {
		return []byte(jsonString(id.plain)), nil
	}
	return []byte(writeDict(id, func(buf *bytes.Buffer, m Marker) {
		buf.WriteString(`["`)
		buf.WriteString(string(m))
		buf.WriteString(`"]`)
	})), nil
}

// UnmarshalJSON accepts a JSON string or a wildcard object.
func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func writeDict(id ID, marker func(*bytes.Buffer, Marker)) string {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range id.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(jsonString(k))
		buf.WriteByte(':')
		switch v := id.dict[k].(type) {
		case Marker:
			marker(&buf, v)
		default:
			buf.WriteString(literalJSON(v))
		}
	}
	buf.WriteByte('}')
	return buf.String()
}

// jsonString encodes s without HTML escaping.
func jsonString(s string) string {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return strings.TrimSuffix(buf.String(), "\n")
}

// LiteralJSON renders a literal value as JSON. Markers render as null.
func LiteralJSON(v Value) string {
	return literalJSON(v)
}

func literalJSON(v Value) string {
	switch val := v.(type) {
	case String:
		return jsonString(string(val))
	case Number:
		f := float64(val)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return "null"
		}
		b, err := json.Marshal(f)
		if err != nil {
			return strconv.FormatFloat(f, 'g', -1, 64)
		}
		return string(b)
	case Bool:
		if val {
			return "true"
		}
		return "false"
	default:
		return "null"
	}
}

// Parse is the inverse of Stringify. Strings starting with "{" are parsed
// as wildcard ids; anything else is a plain id.
func Parse(s string) (ID, error) {
	if !strings.HasPrefix(s, "{") {
		return NewPlain(s), nil
	}

	dec := json.NewDecoder(strings.NewReader(wrapBareMarkers(s)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return ID{}, &ParseError{Input: s, Err: err}
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return ID{}, &ParseError{Input: s, Err: errors.New("trailing data after object")}
	}

	dict := make(map[string]Value, len(raw))
	for k, rv := range raw {
		v, err := valueFromAny(rv)
		if err != nil {
			return ID{}, &ParseError{Input: s, Err: fmt.Errorf("key %q: %w", k, err)}
		}
		dict[k] = v
	}
	return ID{dict: dict}, nil
}

// MustParse is like Parse but panics on error.
// Use only in tests or with known-good input.
func MustParse(s string) ID {
	id, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return id
}

// wrapBareMarkers rewrites bare marker names outside string literals into
// their single-element array form so the result is valid JSON.
func wrapBareMarkers(s string) string {
	var b strings.Builder
	inString, escaped := false, false
	for i := 0; i < len(s); {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			i++
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			i++
			continue
		}
		if isWordByte(c) {
			j := i
			for j < len(s) && isWordByte(s[j]) {
				j++
			}
			word := s[i:j]
			if _, ok := Markers[word]; ok {
				b.WriteString(`["` + word + `"]`)
			} else {
				b.WriteString(word)
			}
			i = j
			continue
		}
		b.WriteByte(c)
		i++
	}
	return b.String()
}

func isWordByte(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}

// FromAny converts a decoded JSON or YAML value into an ID.
// Objects are wildcard ids whose markers are encoded as single-element
// arrays (["ALL"]). Strings go through Parse, so a stringified wildcard id
// is accepted too.
func FromAny(v any) (ID, error) {
	switch val := v.(type) {
	case ID:
		return val, nil
	case string:
		return Parse(val)
	case map[string]any:
		dict := make(map[string]Value, len(val))
		for k, rv := range val {
			wv, err := valueFromAny(rv)
			if err != nil {
				return ID{}, fmt.Errorf("wildcard id key %q: %w", k, err)
			}
			dict[k] = wv
		}
		return ID{dict: dict}, nil
	case map[string]Value:
		return NewWildcard(val), nil
	default:
		return ID{}, fmt.Errorf("id must be a string or an object, got %T", v)
	}
}

func valueFromAny(v any) (Value, error) {
	switch val := v.(type) {
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case float64:
		return Number(val), nil
	case float32:
		return Number(val), nil
	case int:
		return Number(val), nil
	case int64:
		return Number(val), nil
	case uint64:
		return Number(val), nil
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %s", val)
		}
		return Number(f), nil
	case []any:
		if len(val) == 1 {
			if name, ok := val[0].(string); ok {
				if m, ok := Markers[name]; ok {
					return m, nil
				}
			}
		}
		return nil, fmt.Errorf("arrays are only allowed as wildcard markers, got %v", val)
	case []string:
		if len(val) == 1 {
			if m, ok := Markers[val[0]]; ok {
				return m, nil
			}
		}
		return nil, fmt.Errorf("arrays are only allowed as wildcard markers, got %v", val)
	default:
		return nil, fmt.Errorf("value must be a string, number, boolean or wildcard, got %T", v)
	}
}

// CombineIDAndProp renders "id.prop" using the canonical id form.
func CombineIDAndProp(id ID, prop string) string {
	return Stringify(id) + "." + prop
}

// SplitIDAndProp splits "id.prop" on the last dot. Wildcard ids may
// contain dots but property names cannot.
func SplitIDAndProp(s string) (ID, string, error) {
	dot := strings.LastIndex(s, ".")
	if dot < 0 {
		return ID{}, s, nil
	}
	id, err := Parse(s[:dot])
	if err != nil {
		return ID{}, "", err
	}
	return id, s[dot+1:], nil
}

// IsMultiOutput reports whether an output declaration uses the
// "..id1.prop1...id2.prop2.." multi-output syntax.
func IsMultiOutput(output string) bool {
	return strings.HasPrefix(output, "..")
}

// ParseMultipleOutputs splits a multi-output declaration string.
func ParseMultipleOutputs(output string) []string {
	if len(output) < 4 {
		return nil
	}
	return strings.Split(output[2:len(output)-2], "...")
}
