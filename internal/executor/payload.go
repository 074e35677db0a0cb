package executor

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/roach88/reflow/internal/ident"
)

// Prop is one concrete (id, property) with its current value. Outputs carry
// no value.
type Prop struct {
	ID       ident.ID `json:"id"`
	Property string   `json:"property"`
	Value    any      `json:"value,omitempty"`
}

// String renders "id.prop".
func (p Prop) String() string {
	return ident.CombineIDAndProp(p.ID, p.Property)
}

// Arg is the filled form of one declared binding: a single Prop, or a list
// of them for multi-valued bindings. On the wire a single Arg is an object
// and a multi-valued one an array.
type Arg struct {
	Multi bool
	Props []Prop
}

// Value returns what a callback function receives for this binding: the
// value of a single binding, or a []any of values for a multi-valued one.
func (a Arg) Value() any {
	if !a.Multi {
		if len(a.Props) == 0 {
			return nil
		}
		return a.Props[0].Value
	}
	vals := make([]any, len(a.Props))
	for i, p := range a.Props {
		vals[i] = p.Value
	}
	return vals
}

func (a Arg) MarshalJSON() ([]byte, error) {
	if a.Multi {
		props := a.Props
		if props == nil {
			props = []Prop{}
		}
		return json.Marshal(props)
	}
	if len(a.Props) == 0 {
		return []byte("null"), nil
	}
	return json.Marshal(a.Props[0])
}

func (a *Arg) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var props []Prop
		if err := json.Unmarshal(data, &props); err != nil {
			return err
		}
		*a = Arg{Multi: true, Props: props}
		return nil
	}
	var p Prop
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*a = Arg{Props: []Prop{p}}
	return nil
}

// Payload is the request sent to the callback server, and the input of a
// clientside function.
type Payload struct {
	Output         string
	Outputs        []Arg
	Inputs         []Arg
	ChangedPropIDs []string
	State          []Arg
}

type wirePayload struct {
	Output         string          `json:"output"`
	Outputs        json.RawMessage `json:"outputs"`
	Inputs         []Arg           `json:"inputs"`
	ChangedPropIDs []string        `json:"changedPropIds"`
	State          []Arg           `json:"state,omitempty"`
}

// MultiOutput reports whether the payload is for a multi-output callback.
func (p *Payload) MultiOutput() bool {
	return ident.IsMultiOutput(p.Output)
}

// MarshalJSON sends outputs as a list for multi-output callbacks and as the
// single output's Arg otherwise.
func (p *Payload) MarshalJSON() ([]byte, error) {
	var (
		outs []byte
		err  error
	)
	switch {
	case p.MultiOutput():
		outs, err = json.Marshal(p.Outputs)
	case len(p.Outputs) == 1:
		outs, err = json.Marshal(p.Outputs[0])
	default:
		outs = []byte("null")
	}
	if err != nil {
		return nil, err
	}
	inputs := p.Inputs
	if inputs == nil {
		inputs = []Arg{}
	}
	changed := p.ChangedPropIDs
	if changed == nil {
		changed = []string{}
	}
	return json.Marshal(wirePayload{
		Output:         p.Output,
		Outputs:        outs,
		Inputs:         inputs,
		ChangedPropIDs: changed,
		State:          p.State,
	})
}

func (p *Payload) UnmarshalJSON(data []byte) error {
	var w wirePayload
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Payload{
		Output:         w.Output,
		Inputs:         w.Inputs,
		ChangedPropIDs: w.ChangedPropIDs,
		State:          w.State,
	}
	if ident.IsMultiOutput(w.Output) {
		return json.Unmarshal(w.Outputs, &p.Outputs)
	}
	var single Arg
	if err := json.Unmarshal(w.Outputs, &single); err != nil {
		return fmt.Errorf("decode outputs: %w", err)
	}
	p.Outputs = []Arg{single}
	return nil
}

// Data maps a stringified component id to the props to set on it.
type Data map[string]map[string]any

// set records value for (id, prop) unless it is NoUpdate.
func (d Data) set(p Prop, value any) {
	if IsNoUpdate(value) {
		return
	}
	key := p.ID.String()
	props, ok := d[key]
	if !ok {
		props = make(map[string]any)
		d[key] = props
	}
	props[p.Property] = value
}

// ZipOutputs pairs a callback's return value with its outputs.
//
// Multi-output callbacks return one element per declared output, single
// output callbacks return the value itself. A multi-valued output takes a
// list with one element per matched component. NoUpdate leaves a prop out.
func ZipOutputs(p *Payload, ret any) (Data, error) {
	data := make(Data)
	var rets []any
	if p.MultiOutput() {
		list, ok := asList(ret)
		if !ok {
			return nil, fmt.Errorf("callback for %s returned %T, expected a list of %d outputs", p.Output, ret, len(p.Outputs))
		}
		if len(list) != len(p.Outputs) {
			return nil, fmt.Errorf("callback for %s returned %d outputs, expected %d", p.Output, len(list), len(p.Outputs))
		}
		rets = list
	} else {
		rets = []any{ret}
	}

	for i, out := range p.Outputs {
		if i >= len(rets) {
			break
		}
		reti := rets[i]
		if !out.Multi {
			if len(out.Props) > 0 {
				data.set(out.Props[0], reti)
			}
			continue
		}
		if IsNoUpdate(reti) {
			continue
		}
		list, ok := asList(reti)
		if !ok {
			return nil, fmt.Errorf("output %d of %s matches %d components but the callback returned %T", i, p.Output, len(out.Props), reti)
		}
		if len(list) != len(out.Props) {
			return nil, fmt.Errorf("output %d of %s matches %d components but the callback returned %d values", i, p.Output, len(out.Props), len(list))
		}
		for j, prop := range out.Props {
			data.set(prop, list[j])
		}
	}
	return data, nil
}

// asList accepts any slice or array, so functions may return []string or
// []int for a multi-valued output.
func asList(v any) ([]any, bool) {
	if list, ok := v.([]any); ok {
		return list, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	list := make([]any, rv.Len())
	for i := range list {
		list[i] = rv.Index(i).Interface()
	}
	return list, true
}
