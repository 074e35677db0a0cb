package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/roach88/reflow/internal/ident"
)

// Declaration error titles.
const (
	TitleMissingOutputs    = "A callback is missing Outputs"
	TitleMissingInputs     = "A callback is missing Inputs"
	TitlePropertyError     = "Callback property error"
	TitleMissingID         = "Callback item missing ID"
	TitleWildcardIDError   = "Callback wildcard ID error"
	TitleInvalidIDString   = "Callback invalid ID string"
	TitleIDTypeError       = "Callback ID type error"
	TitleDuplicateSelf     = "Duplicate callback Outputs"
	TitleDuplicateOther    = "Duplicate callback outputs"
	TitleOverlappingOutput = "Overlapping wildcard callback outputs"
	TitleSameInputOutput   = "Same `Input` and `Output`"
	TitleMismatchedMatch   = "Mismatched `MATCH` wildcards across `Output`s"
	TitleWildcardsNotInOut = "`Input` / `State` wildcards not in `Output`s"
)

// idInvalidChars may not appear in plain ids.
var idInvalidChars = []string{".", "{"}

var allowedWildcards = map[Role][]ident.Marker{
	RoleOutput: {ident.All, ident.Match},
	RoleInput:  {ident.All, ident.Match, ident.AllSmaller},
	RoleState:  {ident.All, ident.Match, ident.AllSmaller},
}

// parsedDecl is a declaration on its way through validation.
type parsedDecl struct {
	decl      Declaration
	outputs   []Binding
	outputErr []error
}

// validator holds the cross-declaration state of one validation pass.
type validator struct {
	sink    ErrorSink
	failed  bool
	outStrs map[string]bool
	outObjs []Binding
}

func newValidator(sink ErrorSink) *validator {
	return &validator{sink: sink, outStrs: make(map[string]bool)}
}

func (v *validator) report(title string, lines ...string) {
	v.failed = true
	v.sink.Report(title, lines)
}

func (v *validator) validate(p parsedDecl) {
	d := p.decl
	outputs := p.outputs

	hasOutputs := true
	if d.Output == "" {
		hasOutputs = false
		body, _ := json.MarshalIndent(d, "", "  ")
		v.report(TitleMissingOutputs,
			"Please provide an output for this callback:",
			string(body))
	}

	outStrs := make([]string, len(outputs))
	for i, o := range outputs {
		outStrs[i] = o.String()
	}
	head := "In the callback for output(s):\n  " + strings.Join(outStrs, "\n  ")

	for _, err := range p.outputErr {
		v.report(TitleWildcardIDError, head, fmt.Sprintf("Output %q could not be parsed:", d.Output), err.Error())
	}

	if len(d.Inputs) == 0 {
		v.report(TitleMissingInputs,
			head,
			"there are no `Input` elements.",
			"Without `Input` elements, it will never get called.",
			"",
			"Subscribing to `Input` components will cause the",
			"callback to be called whenever their values change.")
	}

	if hasOutputs {
		for i, o := range outputs {
			v.validateArg(Dependency{ID: o.ID, Property: o.Property}, head, RoleOutput, i)
		}
	}
	for i, in := range d.Inputs {
		v.validateArg(in, head, RoleInput, i)
	}
	for i, st := range d.State {
		v.validateArg(st, head, RoleState, i)
	}

	if hasOutputs {
		v.findDuplicateOutputs(outputs, head)
	}
	inputs := toBindings(d.Inputs)
	v.findInOutOverlap(outputs, inputs, head)
	v.findMismatchedWildcards(outputs, inputs, toBindings(d.State), head)
}

func (v *validator) validateArg(dep Dependency, head string, role Role, i int) {
	if dep.invalid != nil && dep.invalid.field == "property" {
		raw, _ := json.Marshal(dep.invalid.raw)
		v.report(TitlePropertyError, head,
			fmt.Sprintf("%s[%d].property = %s", role, i, raw),
			"but we expected `property` to be a non-empty string.")
	} else if dep.Property == "" {
		v.report(TitlePropertyError, head,
			fmt.Sprintf("%s[%d].property = %q", role, i, dep.Property),
			"but we expected `property` to be a non-empty string.")
	}

	if dep.invalid != nil && dep.invalid.field == "id" {
		raw, _ := json.Marshal(dep.invalid.raw)
		switch dep.invalid.raw.(type) {
		case map[string]any, string:
			v.report(TitleWildcardIDError, head,
				fmt.Sprintf("%s[%d].id = %s", role, i, raw),
				"Wildcard callback ID values must be either wildcards",
				"or constants of one of these types:",
				"string, number, boolean")
		default:
			v.report(TitleIDTypeError, head,
				fmt.Sprintf("%s[%d].id = %s", role, i, raw),
				"IDs must be strings or wildcard-compatible objects.")
		}
		return
	}

	id := dep.ID
	if !id.IsWildcard() {
		s := id.String()
		if s == "" {
			v.report(TitleMissingID, head,
				fmt.Sprintf("%s[%d].id = %q", role, i, s),
				"Every item linked to a callback needs an ID")
		}
		var bad []string
		for _, c := range idInvalidChars {
			if strings.Contains(s, c) {
				bad = append(bad, c)
			}
		}
		if len(bad) > 0 {
			v.report(TitleInvalidIDString, head,
				fmt.Sprintf("%s[%d].id = '%s'", role, i, s),
				fmt.Sprintf("characters '%s' are not allowed.", strings.Join(bad, "', '")))
		}
		return
	}

	if id.Len() == 0 {
		v.report(TitleMissingID, head,
			fmt.Sprintf("%s[%d].id = {}", role, i),
			"Every item linked to a callback needs an ID")
	}
	for _, k := range id.Keys() {
		if k == "" {
			v.report(TitleWildcardIDError, head,
				fmt.Sprintf("%s[%d].id has key %q", role, i, k),
				"Keys must be non-empty strings.")
		}
		val, _ := id.Get(k)
		if m, ok := val.(ident.Marker); ok {
			if !markerAllowed(role, m) {
				v.report(TitleWildcardIDError, head,
					fmt.Sprintf("%s[%d].id[%q] = %s", role, i, k, m),
					fmt.Sprintf("Allowed wildcards for %ss are:", role),
					allowedList(role))
			}
			continue
		}
		if n, ok := val.(ident.Number); ok && (math.IsNaN(float64(n)) || math.IsInf(float64(n), 0)) {
			v.report(TitleWildcardIDError, head,
				fmt.Sprintf("%s[%d].id[%q] = %v", role, i, k, float64(n)),
				"Wildcard callback ID values must be either wildcards",
				"or constants of one of these types:",
				"string, number, boolean")
		}
	}
}

func markerAllowed(role Role, m ident.Marker) bool {
	for _, a := range allowedWildcards[role] {
		if a == m {
			return true
		}
	}
	return false
}

func allowedList(role Role) string {
	names := make([]string, len(allowedWildcards[role]))
	for i, m := range allowedWildcards[role] {
		names[i] = string(m)
	}
	return strings.Join(names, ", ")
}

func (v *validator) findDuplicateOutputs(outputs []Binding, head string) {
	newStrs := make(map[string]bool)
	var newObjs []Binding

	for i, o := range outputs {
		if !o.ID.IsWildcard() {
			idProp := o.String()
			switch {
			case newStrs[idProp]:
				v.report(TitleDuplicateSelf, head,
					fmt.Sprintf("Output %d (%s) is already used by this callback.", i, idProp))
			case v.outStrs[idProp]:
				v.report(TitleDuplicateOther, head,
					fmt.Sprintf("Output %d (%s) is already in use.", i, idProp),
					"To resolve this, combine the outputs into one callback",
					"function, distinguishing the trigger by using the",
					"callback context if necessary.")
			default:
				newStrs[idProp] = true
			}
			continue
		}

		self, selfOK := wildcardOverlap(o, newObjs)
		other, otherOK := wildcardOverlap(o, v.outObjs)
		if selfOK || otherOK {
			overlap, where := other, "a different"
			if selfOK {
				overlap, where = self, "this"
			}
			v.report(TitleOverlappingOutput, head,
				fmt.Sprintf("Output %d (%s)", i, o),
				fmt.Sprintf("overlaps another output (%s)", overlap),
				fmt.Sprintf("used in %s callback.", where))
			continue
		}
		newObjs = append(newObjs, o)
	}

	for k := range newStrs {
		v.outStrs[k] = true
	}
	v.outObjs = append(v.outObjs, newObjs...)
}

// wildcardOverlap returns the first wildcard binding in objs with the same
// property and key set whose values can select a common component.
func wildcardOverlap(b Binding, objs []Binding) (Binding, bool) {
	keys := b.ID.Keys()
	sig := b.ID.KeySignature()
	vals := b.ID.Values(keys)
	for _, o := range objs {
		if o.Property != b.Property || !o.ID.IsWildcard() || o.ID.KeySignature() != sig {
			continue
		}
		ovals := o.ID.Values(keys)
		overlap := true
		for i := range vals {
			if !valuesOverlap(vals[i], ovals[i]) {
				overlap = false
				break
			}
		}
		if overlap {
			return o, true
		}
	}
	return Binding{}, false
}

// valuesOverlap: every wildcard pair overlaps except MATCH with ALLSMALLER;
// a wildcard overlaps any literal; literals overlap when equal.
func valuesOverlap(a, b ident.Value) bool {
	am, aWild := a.(ident.Marker)
	bm, bWild := b.(ident.Marker)
	if aWild && bWild {
		return !((am == ident.Match && bm == ident.AllSmaller) || (am == ident.AllSmaller && bm == ident.Match))
	}
	return aWild || bWild || a == b
}

func (v *validator) findInOutOverlap(outputs, inputs []Binding, head string) {
	for oi, out := range outputs {
		for ii, in := range inputs {
			if out.Property != in.Property || out.ID.IsWildcard() != in.ID.IsWildcard() {
				continue
			}
			if !out.ID.IsWildcard() {
				if out.ID.Equal(in.ID) {
					v.report(TitleSameInputOutput, head,
						fmt.Sprintf("Input %d (%s)", ii, in),
						fmt.Sprintf("matches Output %d (%s)", oi, out))
				}
				continue
			}
			if _, ok := wildcardOverlap(in, []Binding{out}); ok {
				v.report(TitleSameInputOutput, head,
					fmt.Sprintf("Input %d (%s)", ii, in),
					"can match the same component(s) as",
					fmt.Sprintf("Output %d (%s)", oi, out))
			}
		}
	}
}

func (v *validator) findMismatchedWildcards(outputs, inputs, state []Binding, head string) {
	var out0Match []string
	if len(outputs) > 0 {
		out0Match = outputs[0].ID.KeysWith(ident.Match)
	}
	for i, o := range outputs {
		if i == 0 {
			continue
		}
		if !equalStrings(o.ID.KeysWith(ident.Match), out0Match) {
			v.report(TitleMismatchedMatch, head,
				fmt.Sprintf("Output %d (%s)", i, o),
				"does not have MATCH wildcards on the same keys as",
				fmt.Sprintf("Output 0 (%s).", outputs[0]),
				"MATCH wildcards must be on the same keys for all Outputs.",
				"ALL wildcards need not match, only MATCH.")
		}
	}

	check := func(args []Binding, role Role) {
		for i, arg := range args {
			wild := append(arg.ID.KeysWith(ident.Match), arg.ID.KeysWith(ident.AllSmaller)...)
			diff := difference(wild, out0Match)
			if len(diff) == 0 {
				continue
			}
			sort.Strings(diff)
			out0 := ""
			if len(outputs) > 0 {
				out0 = outputs[0].String()
			}
			v.report(TitleWildcardsNotInOut, head,
				fmt.Sprintf("%s %d (%s)", role, i, arg),
				fmt.Sprintf("has MATCH or ALLSMALLER on key(s) %s", strings.Join(diff, ", ")),
				fmt.Sprintf("where Output 0 (%s)", out0),
				"does not have a MATCH wildcard. Inputs and State do not",
				"need every MATCH from the Output(s), but they cannot have",
				"extras beyond the Output(s).")
		}
	}
	check(inputs, RoleInput)
	check(state, RoleState)
}

func equalStrings(a, b []string) bool {
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

func difference(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, s := range b {
		in[s] = true
	}
	var out []string
	for _, s := range a {
		if !in[s] {
			out = append(out, s)
		}
	}
	return out
}
