// Package executor runs resolved callbacks.
//
// Prepare reads a callback's input and state values out of the layout into a
// Payload. Execute then invokes either a registered Go function (clientside)
// or the remote callback server (serverside); both paths converge on a
// Result holding the props to apply.
package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/roach88/reflow/internal/resolve"
)

// UpdatePath is the endpoint of the callback server.
const UpdatePath = "/_dash-update-component"

type noUpdate struct{}

// NoUpdate, returned for an output, leaves that output unchanged.
var NoUpdate any = noUpdate{}

// IsNoUpdate reports whether v is the NoUpdate sentinel.
func IsNoUpdate(v any) bool {
	_, ok := v.(noUpdate)
	return ok
}

// Future is an asynchronous result. Callback functions may not return one.
type Future interface {
	Wait(ctx context.Context) (any, error)
}

// Func is a callback function. It receives one argument per input followed
// by one per state, and returns the output value (a []any with one element
// per output for multi-output callbacks).
type Func func(cc *CallbackContext, args ...any) (any, error)

// Registry holds clientside functions by namespace and function name.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Func
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Func)}
}

// Register adds fn, replacing any function with the same name.
func (r *Registry) Register(namespace, name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[namespace+"."+name] = fn
}

// Lookup finds a registered function.
func (r *Registry) Lookup(namespace, name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[namespace+"."+name]
	return fn, ok
}

// Triggered is one prop that caused the call, with its current value.
type Triggered struct {
	PropID string `json:"prop_id"`
	Value  any    `json:"value"`
}

// CallbackContext is visible to a callback function during its invocation.
type CallbackContext struct {
	context.Context

	Triggered []Triggered
	// Inputs and States map "id.prop" to the current value.
	Inputs      map[string]any
	States      map[string]any
	InputsList  []Arg
	StatesList  []Arg
	OutputsList []Arg
}

// NewCallbackContext describes p to the function about to handle it.
func NewCallbackContext(ctx context.Context, p *Payload) *CallbackContext {
	cc := &CallbackContext{
		Context:     ctx,
		Inputs:      flattenArgs(p.Inputs),
		States:      flattenArgs(p.State),
		InputsList:  p.Inputs,
		StatesList:  p.State,
		OutputsList: p.Outputs,
	}
	for _, id := range p.ChangedPropIDs {
		cc.Triggered = append(cc.Triggered, Triggered{PropID: id, Value: cc.Inputs[id]})
	}
	return cc
}

func flattenArgs(args []Arg) map[string]any {
	m := make(map[string]any)
	for _, a := range args {
		for _, p := range a.Props {
			m[p.String()] = p.Value
		}
	}
	return m
}

// Args lists the values passed to a callback function: inputs, then state.
func Args(p *Payload) []any {
	args := make([]any, 0, len(p.Inputs)+len(p.State))
	for _, a := range p.Inputs {
		args = append(args, a.Value())
	}
	for _, a := range p.State {
		args = append(args, a.Value())
	}
	return args
}

// Result is the outcome of one execution. Exactly one of Data and Err is
// set; an empty Data is a prevented update.
type Result struct {
	Data    Data
	Err     error
	Payload *Payload
}

// Executor dispatches callbacks to clientside functions or the callback
// server. It is safe for concurrent use.
type Executor struct {
	registry  *Registry
	serverURL string
	client    *http.Client
	timeout   time.Duration
}

// Option configures an Executor.
type Option func(*Executor)

// WithRegistry sets the clientside function registry.
func WithRegistry(r *Registry) Option {
	return func(e *Executor) {
		e.registry = r
	}
}

// WithServerURL sets the base URL of the callback server.
func WithServerURL(url string) Option {
	return func(e *Executor) {
		e.serverURL = strings.TrimRight(url, "/")
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(e *Executor) {
		e.client = c
	}
}

// WithRequestTimeout bounds each serverside call. Zero means no bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(e *Executor) {
		e.timeout = d
	}
}

// New creates an Executor.
func New(opts ...Option) *Executor {
	e := &Executor{
		registry: NewRegistry(),
		client:   http.DefaultClient,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs cb with payload p. Clientside callbacks call the registered
// function, all others go to the callback server.
func (e *Executor) Execute(ctx context.Context, cb *resolve.Callback, p *Payload) Result {
	var (
		data Data
		err  error
	)
	if fn := cb.Decl.ClientsideFunction; fn != nil {
		data, err = e.clientside(ctx, fn.Namespace, fn.FunctionName, p)
	} else {
		data, err = e.serverside(ctx, p)
	}
	if err != nil {
		return Result{Err: err, Payload: p}
	}
	return Result{Data: data, Payload: p}
}

func (e *Executor) clientside(ctx context.Context, namespace, name string, p *Payload) (Data, error) {
	fn, ok := e.registry.Lookup(namespace, name)
	if !ok {
		return nil, fmt.Errorf("no clientside function %s.%s is registered", namespace, name)
	}

	ret, err := fn(NewCallbackContext(ctx, p), Args(p)...)
	if IsPreventUpdate(err) {
		return Data{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("clientside function %s.%s: %w", namespace, name, err)
	}
	if _, ok := ret.(Future); ok {
		return nil, ErrFutureUnsupported
	}
	return ZipOutputs(p, ret)
}

func (e *Executor) serverside(ctx context.Context, p *Payload) (Data, error) {
	if e.serverURL == "" {
		return nil, fmt.Errorf("callback %s is serverside but no server URL is configured", p.Output)
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.serverURL+UpdatePath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	slog.Debug("serverside call", "output", p.Output, "triggers", p.ChangedPropIDs)
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &NetworkError{Err: err}
	}
	switch resp.StatusCode {
	case http.StatusOK:
		var r Response
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("decode response for %s: %w", p.Output, err)
		}
		return r.Data(p)
	case http.StatusNoContent:
		return Data{}, nil
	default:
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
}

// Response is the callback server's success body. A multi response maps
// stringified ids to props; a single one is {"props": {...}} for the only
// output.
type Response struct {
	Multi    bool            `json:"multi"`
	Response json.RawMessage `json:"response"`
}

type singleBody struct {
	Props map[string]any `json:"props"`
}

// MultiResponse wraps data as a multi response.
func MultiResponse(data Data) (*Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Response{Multi: true, Response: raw}, nil
}

// SingleResponse wraps the props of a single-output callback.
func SingleResponse(props map[string]any) (*Response, error) {
	raw, err := json.Marshal(singleBody{Props: props})
	if err != nil {
		return nil, err
	}
	return &Response{Response: raw}, nil
}

// Data maps the response onto component ids. A single response is keyed by
// the concrete id of the payload's only output.
func (r *Response) Data(p *Payload) (Data, error) {
	if r.Multi {
		var d Data
		if err := json.Unmarshal(r.Response, &d); err != nil {
			return nil, fmt.Errorf("decode multi response: %w", err)
		}
		if d == nil {
			d = Data{}
		}
		return d, nil
	}

	var single singleBody
	if err := json.Unmarshal(r.Response, &single); err != nil {
		return nil, fmt.Errorf("decode single response: %w", err)
	}
	if len(p.Outputs) != 1 || len(p.Outputs[0].Props) == 0 {
		return nil, fmt.Errorf("single response for %s, which has %d outputs", p.Output, len(p.Outputs))
	}
	d := Data{}
	if len(single.Props) > 0 {
		d[p.Outputs[0].Props[0].ID.String()] = single.Props
	}
	return d, nil
}
