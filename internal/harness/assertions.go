package harness

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		buf.WriteString(RenderTrace(e.Trace))
	}

	return buf.String()
}

// EvaluateAssertions checks every assertion against result and returns the
// failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluateAssertion(result, a); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %s", i, err.Error()))
		}
	}
	return errs
}

func evaluateAssertion(result *Result, a Assertion) error {
	switch a.Type {
	case AssertRunOrder:
		return assertRunOrder(result.Trace, a)
	case AssertRunCount:
		return assertRunCount(result.Trace, a)
	case AssertFinalProps:
		return assertFinalProps(result.Layout, a)
	case AssertErrorCount:
		return assertErrorCount(result.Reported, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertRunOrder checks that the callbacks first ran in the given order.
// Other runs may come in between.
func assertRunOrder(trace []TraceEvent, a Assertion) error {
	positions := make(map[string]int)
	for i, event := range trace {
		if event.Type != EventRun {
			continue
		}
		if _, seen := positions[event.ResolvedID]; !seen {
			positions[event.ResolvedID] = i + 1
		}
	}

	for _, cb := range a.Callbacks {
		if positions[cb] == 0 {
			return &AssertionError{
				Type:     AssertRunOrder,
				Expected: fmt.Sprintf("all callbacks run: %v", a.Callbacks),
				Actual:   fmt.Sprintf("%s never ran", cb),
				Trace:    trace,
			}
		}
	}

	for i := 1; i < len(a.Callbacks); i++ {
		prev, curr := a.Callbacks[i-1], a.Callbacks[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertRunOrder,
				Expected: fmt.Sprintf("callbacks in order: %v", a.Callbacks),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

// assertRunCount checks how often the callback ran, optionally counting
// one outcome only.
func assertRunCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if event.Type != EventRun || event.ResolvedID != a.Callback {
			continue
		}
		if a.Outcome != "" && event.Outcome != a.Outcome {
			continue
		}
		count++
	}

	if count != a.Count {
		what := a.Callback
		if a.Outcome != "" {
			what += " " + a.Outcome
		}
		return &AssertionError{
			Type:     AssertRunCount,
			Expected: fmt.Sprintf("%d runs of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d runs", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalProps finds the component in the final layout and compares
// the expected props (subset semantics).
func assertFinalProps(root any, a Assertion) error {
	id, err := ident.FromAny(a.ID)
	if err != nil {
		return err
	}

	path, ok := layout.Compute(root, nil, nil).Lookup(id)
	if !ok {
		return &AssertionError{
			Type:     AssertFinalProps,
			Expected: fmt.Sprintf("component %s in the layout", id),
			Actual:   "component not found",
		}
	}

	tree := layout.NewTree(root)
	keys := make([]string, 0, len(a.Expect))
	for k := range a.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		want := a.Expect[key]
		got, ok := tree.Prop(path, key)
		if !ok {
			return &AssertionError{
				Type:     AssertFinalProps,
				Expected: fmt.Sprintf("%s.%s = %v", id, key, want),
				Actual:   "prop not set",
			}
		}
		if !reflect.DeepEqual(got, want) {
			return &AssertionError{
				Type:     AssertFinalProps,
				Expected: fmt.Sprintf("%s.%s = %v (%T)", id, key, want, want),
				Actual:   fmt.Sprintf("%v (%T)", got, got),
			}
		}
	}
	return nil
}

func assertErrorCount(reported []string, a Assertion) error {
	if len(reported) != a.Count {
		return &AssertionError{
			Type:     AssertErrorCount,
			Expected: fmt.Sprintf("%d reported errors", a.Count),
			Actual:   fmt.Sprintf("%d: %v", len(reported), reported),
		}
	}
	return nil
}
