package ident

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Compare orders wildcard values for ALLSMALLER: numeric values (numeric
// strings included) sort before booleans, booleans (false < true) before
// other strings. Returns -1, 0 or 1.
func Compare(a, b Value) int {
	an, aNum := numeric(a)
	bn, bNum := numeric(b)
	switch {
	case aNum && bNum:
		return sign(an - bn)
	case aNum:
		return -1
	case bNum:
		return 1
	}

	ab, aBool := a.(Bool)
	bb, bBool := b.(Bool)
	switch {
	case aBool && bBool:
		if ab == bb {
			return 0
		}
		if !ab {
			return -1
		}
		return 1
	case aBool:
		return -1
	case bBool:
		return 1
	}

	return strings.Compare(valueText(a), valueText(b))
}

func numeric(v Value) (float64, bool) {
	switch val := v.(type) {
	case Number:
		f := float64(val)
		return f, !math.IsNaN(f)
	case String:
		s := strings.TrimSpace(string(val))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func valueText(v Value) string {
	switch val := v.(type) {
	case String:
		return string(val)
	case Marker:
		return string(val)
	default:
		return literalJSON(v)
	}
}

func sign(f float64) int {
	switch {
	case f < 0:
		return -1
	case f > 0:
		return 1
	default:
		return 0
	}
}

// Ref is the reference substitution a pattern is matched against: the keys,
// concrete values and pattern values of the binding that triggered the match.
type Ref struct {
	Keys        []string
	Vals        []Value
	PatternVals []Value
}

func (r *Ref) index(key string) int {
	for i, k := range r.Keys {
		if k == key {
			return i
		}
	}
	return -1
}

// MatchValues reports whether the concrete vals satisfy patternVals for keys.
//
// Literal pattern values require equality. ALL matches anything. Without a
// reference every marker matches. With one, MATCH requires the value to equal
// the reference value, ALLSMALLER requires it to sort strictly before it, and
// a MATCH pattern against an ALLSMALLER reference requires it to sort strictly
// after. A key marked ALLSMALLER on both sides is an error.
func MatchValues(keys []string, vals, patternVals []Value, ref *Ref) (bool, error) {
	for i, key := range keys {
		val, pattern := vals[i], patternVals[i]
		marker, wild := pattern.(Marker)
		if !wild {
			if val != pattern {
				return false, nil
			}
			continue
		}
		if ref == nil || marker == All {
			continue
		}
		ri := ref.index(key)
		if ri < 0 {
			continue
		}
		refPattern := ref.PatternVals[ri]
		if marker == AllSmaller && refPattern == AllSmaller {
			return false, fmt.Errorf("invalid wildcard id pair: both sides mark %q as ALLSMALLER", key)
		}
		want := 0
		switch {
		case marker == AllSmaller:
			want = -1
		case refPattern == AllSmaller:
			want = 1
		}
		if Compare(val, ref.Vals[ri]) != want {
			return false, nil
		}
	}
	return true, nil
}
