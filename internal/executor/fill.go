package executor

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/resolve"
)

// Prepare reads the current values a callback needs and builds its payload.
//
// It returns a nil payload and no error for a null execution: every input is
// missing (or every multi-valued one empty) while at least one is single
// valued, or the inputs are all empty multi-valued bindings but an output is
// missing. Any other missing or ambiguous binding is a *ReferenceError.
//
// Prepare reads the tree and must run on the goroutine that owns it. Values
// are copied, so the payload may be used on another goroutine.
func Prepare(ix *layout.Index, tree *layout.Tree, cb *resolve.Callback) (*Payload, error) {
	inputs, err := fill(ix, tree, cb, graph.RoleInput, true)
	if err != nil {
		return nil, err
	}
	if inputs == nil {
		return nil, nil
	}

	outGroups := cb.Bindings(graph.RoleOutput, ix)
	outputs := make([]Arg, len(outGroups))
	var outErrs []string
	for i, group := range outGroups {
		arg, msg := unwrapIfNotMulti(ix, toProps(group, nil), cb.Decl.Outputs[i], cb.AnyVals, graph.RoleOutput)
		outputs[i] = arg
		if msg != "" {
			outErrs = append(outErrs, msg)
		}
	}
	if len(outErrs) > 0 {
		if countProps(inputs) > 0 {
			return nil, &ReferenceError{Messages: outErrs}
		}
		return nil, nil
	}

	p := &Payload{
		Output:         cb.Decl.Output,
		Outputs:        outputs,
		Inputs:         inputs,
		ChangedPropIDs: cb.Triggers(),
	}
	if len(cb.Decl.States) > 0 {
		state, err := fill(ix, tree, cb, graph.RoleState, false)
		if err != nil {
			return nil, err
		}
		p.State = state
	}
	return p, nil
}

func fill(ix *layout.Index, tree *layout.Tree, cb *resolve.Callback, role graph.Role, allowAllMissing bool) ([]Arg, error) {
	specs := cb.Decl.Bindings(role)
	groups := cb.Bindings(role, ix)

	args := make([]Arg, len(groups))
	var (
		errs             []string
		emptyMultiValues int
	)
	for i, group := range groups {
		arg, msg := unwrapIfNotMulti(ix, toProps(group, tree), specs[i], cb.AnyVals, role)
		if specs[i].MultiValued() && len(arg.Props) == 0 {
			emptyMultiValues++
		}
		if msg != "" {
			errs = append(errs, msg)
		}
		args[i] = arg
	}

	if len(errs) > 0 {
		if allowAllMissing && len(errs)+emptyMultiValues == len(args) {
			return nil, nil
		}
		return nil, &ReferenceError{Messages: errs}
	}
	return args, nil
}

func toProps(group []resolve.ConcreteBinding, tree *layout.Tree) []Prop {
	props := make([]Prop, len(group))
	for i, b := range group {
		props[i] = Prop{ID: b.ID, Property: b.Property}
		if tree != nil {
			v, _ := tree.Prop(b.Path, b.Property)
			props[i].Value = layout.CloneValue(v)
		}
	}
	return props
}

func countProps(args []Arg) int {
	n := 0
	for _, a := range args {
		n += len(a.Props)
	}
	return n
}

// unwrapIfNotMulti checks that a single-valued binding resolved to exactly
// one component and returns a message describing the problem otherwise.
func unwrapIfNotMulti(ix *layout.Index, props []Prop, spec graph.Binding, anyVals string, role graph.Role) (Arg, string) {
	if spec.MultiValued() {
		return Arg{Multi: true, Props: props}, ""
	}
	if len(props) == 1 {
		return Arg{Props: props}, ""
	}

	withMatch := ""
	if anyVals != "" {
		withMatch = " with MATCH values " + anyVals
	}
	if len(props) == 0 {
		if !spec.ID.IsWildcard() {
			return Arg{}, fmt.Sprintf("A nonexistent object was used in an `%s` of a callback. "+
				"The id of this object is `%s` and the property is `%s`. "+
				"The string ids in the current layout are: [%s]",
				role, spec.ID, spec.Property, strings.Join(plainIDs(ix), ", "))
		}
		return Arg{}, fmt.Sprintf("A nonexistent object was used in an `%s` of a callback. "+
			"The id of this object is %s%s and the property is `%s`. "+
			"The wildcard ids currently available are logged above.",
			role, spec.ID, withMatch, spec.Property)
	}

	found := make([]string, len(props))
	for i, p := range props {
		found[i] = p.String()
	}
	return Arg{Props: props[:1]}, fmt.Sprintf("Multiple objects were found for an `%s` of a callback that only takes one value. "+
		"The id spec is %s%s and the property is `%s`. The objects we found are: [%s]",
		role, spec.ID, withMatch, spec.Property, strings.Join(found, ", "))
}

func plainIDs(ix *layout.Index) []string {
	var ids []string
	for _, id := range ix.IDs() {
		if !id.IsWildcard() {
			ids = append(ids, id.String())
		}
	}
	sort.Strings(ids)
	return ids
}
