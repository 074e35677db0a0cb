package graph

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/reflow/internal/ident"
)

// Declaration is one callback as registered by an application.
//
// Output is either "id.prop" or the multi-output form "..id1.p1...id2.p2..".
type Declaration struct {
	Output             string              `json:"output"`
	Inputs             []Dependency        `json:"inputs"`
	State              []Dependency        `json:"state,omitempty"`
	ClientsideFunction *ClientsideFunction `json:"clientside_function,omitempty"`
	PreventInitialCall bool                `json:"prevent_initial_call,omitempty"`
}

// ClientsideFunction names an in-process callback implementation.
type ClientsideFunction struct {
	Namespace    string `json:"namespace"`
	FunctionName string `json:"function_name"`
}

// Dependency is an {id, property} pair as declared.
//
// Decoding never fails on a bad id or property; the problem is kept and
// reported by Build as a declaration error.
type Dependency struct {
	ID       ident.ID `json:"id"`
	Property string   `json:"property"`

	invalid *invalidField
}

type invalidField struct {
	field string // "id" or "property"
	raw   any
	err   error
}

// Dep builds a Dependency from an id and property.
func Dep(id ident.ID, property string) Dependency {
	return Dependency{ID: id, Property: property}
}

// UnmarshalJSON decodes {"id": ..., "property": ...}. Ids may be strings,
// stringified wildcard ids or wildcard objects with ["MATCH"]-style markers.
func (d *Dependency) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw struct {
		ID       any `json:"id"`
		Property any `json:"property"`
	}
	if err := dec.Decode(&raw); err != nil {
		return err
	}

	*d = Dependency{}
	switch p := raw.Property.(type) {
	case string:
		d.Property = p
	default:
		d.invalid = &invalidField{field: "property", raw: raw.Property}
	}

	if raw.ID == nil {
		return nil
	}
	id, err := ident.FromAny(raw.ID)
	if err != nil {
		d.invalid = &invalidField{field: "id", raw: raw.ID, err: err}
		return nil
	}
	d.ID = id
	return nil
}

// Role tells how a binding participates in a callback.
type Role int

const (
	RoleOutput Role = iota
	RoleInput
	RoleState
)

// String returns the role as used in declaration error messages.
func (r Role) String() string {
	switch r {
	case RoleOutput:
		return "Output"
	case RoleInput:
		return "Input"
	case RoleState:
		return "State"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Binding is a declared (id, property) in a given role.
type Binding struct {
	ID       ident.ID
	Property string
	Out      bool
}

// String renders "id.prop".
func (b Binding) String() string {
	return ident.CombineIDAndProp(b.ID, b.Property)
}

// MultiValued reports whether the binding can resolve to several components.
func (b Binding) MultiValued() bool {
	return b.ID.MultiValued()
}

// Callback is a validated declaration with its bindings split out.
//
// Outputs, Inputs and States hold the declared bindings, wildcards
// included; the resolve package expands them against a layout. Callbacks
// are shared by every resolved instance and must not be modified.
type Callback struct {
	Declaration

	// Index is the position of the declaration in the input list.
	Index   int
	Outputs []Binding
	Inputs  []Binding
	States  []Binding

	// MatchKeys are the sorted MATCH keys of output 0.
	MatchKeys []string
	// FirstSingleOutput is the index of the first output that is not
	// multi-valued, or -1.
	FirstSingleOutput int
}

// Bindings returns the bindings for role.
func (c *Callback) Bindings(role Role) []Binding {
	switch role {
	case RoleOutput:
		return c.Outputs
	case RoleInput:
		return c.Inputs
	default:
		return c.States
	}
}

// Clientside reports whether the callback runs in-process.
func (c *Callback) Clientside() bool {
	return c.ClientsideFunction != nil
}

// MultiOutput reports whether the declaration used the multi-output form.
func (c *Callback) MultiOutput() bool {
	return ident.IsMultiOutput(c.Output)
}

// splitOutputs parses a declaration's output string into bindings.
func splitOutputs(output string) ([]Binding, []error) {
	parts := []string{output}
	if ident.IsMultiOutput(output) {
		parts = ident.ParseMultipleOutputs(output)
	}
	var (
		outs []Binding
		errs []error
	)
	for _, part := range parts {
		id, prop, err := ident.SplitIDAndProp(part)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		outs = append(outs, Binding{ID: id, Property: prop, Out: true})
	}
	return outs, errs
}

func toBindings(deps []Dependency) []Binding {
	out := make([]Binding, len(deps))
	for i, d := range deps {
		out[i] = Binding{ID: d.ID, Property: d.Property}
	}
	return out
}
