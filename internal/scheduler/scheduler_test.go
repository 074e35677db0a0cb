package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/store"
)

// memJournal records journal writes in memory.
type memJournal struct {
	mu      sync.Mutex
	runs    []store.Run
	updates []store.Update
}

func (j *memJournal) WriteRun(_ context.Context, r store.Run) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.runs = append(j.runs, r)
	return nil
}

func (j *memJournal) WriteUpdate(_ context.Context, u store.Update) (bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.updates = append(j.updates, u)
	return true, nil
}

// outcomes returns "resolved_id=outcome" per run, in order.
func (j *memJournal) outcomes() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.runs))
	for i, r := range j.runs {
		out[i] = r.ResolvedID + "=" + string(r.Outcome)
	}
	return out
}

type memRenderer struct {
	mu      sync.Mutex
	updates []UpdateProps
}

func (r *memRenderer) UpdateProps(_ context.Context, u UpdateProps) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, u)
	return nil
}

func (r *memRenderer) sources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.updates))
	for i, u := range r.updates {
		out[i] = u.Source
	}
	return out
}

type memReporter struct {
	mu   sync.Mutex
	errs []error
}

func (r *memReporter) Report(_ ErrorKind, _ *resolve.Callback, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *memReporter) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

type execFunc func(ctx context.Context, cb *resolve.Callback, p *executor.Payload) executor.Result

func (f execFunc) Execute(ctx context.Context, cb *resolve.Callback, p *executor.Payload) executor.Result {
	return f(ctx, cb, p)
}

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(s), &v))
	return v
}

func build(t *testing.T, decls ...graph.Declaration) *graph.Graph {
	t.Helper()
	var c graph.Collector
	g := graph.Build(decls, &c)
	require.NoError(t, c.Err())
	return g
}

func dep(id any, prop string) graph.Dependency {
	switch v := id.(type) {
	case string:
		return graph.Dep(ident.NewPlain(v), prop)
	case ident.ID:
		return graph.Dep(v, prop)
	}
	panic("bad id")
}

func clientside(name string) *graph.ClientsideFunction {
	return &graph.ClientsideFunction{Namespace: "test", FunctionName: name}
}

// run starts the loop and stops it when the test ends.
func run(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-errc
	})
}

func waitIdle(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.WaitIdle(ctx))
}

// prop reads a prop from the scheduler's current layout.
func prop(t *testing.T, s *Scheduler, id ident.ID, name string) any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	root, err := s.Snapshot(ctx)
	require.NoError(t, err)

	p, ok := layout.Compute(root, nil, nil).Lookup(id)
	require.True(t, ok, "no component %s", id)
	v, _ := layout.NewTree(root).Prop(p, name)
	return v
}

// nextEvent dequeues the next event without a running loop.
func nextEvent(t *testing.T, s *Scheduler) event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if ev, ok := s.queue.TryDequeue(); ok {
			return ev
		}
		select {
		case <-s.queue.Wait():
		case <-deadline:
			t.Fatal("timed out waiting for an event")
		}
	}
}

const chainLayout = `[
  {"props": {"id": "in", "value": 1}},
  {"props": {"id": "mid", "value": null}},
  {"props": {"id": "out", "children": null}}
]`

type chain struct {
	s        *Scheduler
	journal  *memJournal
	renderer *memRenderer
	outCalls atomic.Int32
}

func newChain(t *testing.T, opts ...Option) *chain {
	t.Helper()
	g := build(t,
		graph.Declaration{Output: "mid.value", Inputs: []graph.Dependency{dep("in", "value")}, ClientsideFunction: clientside("double")},
		graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("mid", "value")}, ClientsideFunction: clientside("show")},
	)

	c := &chain{journal: &memJournal{}, renderer: &memRenderer{}}
	reg := executor.NewRegistry()
	reg.Register("test", "double", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return args[0].(float64) * 2, nil
	})
	reg.Register("test", "show", func(_ *executor.CallbackContext, args ...any) (any, error) {
		c.outCalls.Add(1)
		return fmt.Sprint(args[0]), nil
	})

	opts = append([]Option{
		WithExecutor(executor.New(executor.WithRegistry(reg))),
		WithJournal(c.journal),
		WithRenderer(c.renderer),
		WithGroupGenerator(NewSequenceGenerator("g")),
	}, opts...)
	c.s = New(g, decode(t, chainLayout), opts...)
	run(t, c.s)
	return c
}

func TestScheduler_HydrateRunsChainInOrder(t *testing.T) {
	c := newChain(t)
	require.True(t, c.s.Hydrate())
	waitIdle(t, c.s)

	assert.Equal(t, 2.0, prop(t, c.s, ident.NewPlain("mid"), "value"))
	assert.Equal(t, "2", prop(t, c.s, ident.NewPlain("out"), "children"))
	assert.Equal(t, int32(1), c.outCalls.Load(), "downstream callback waits for its input")

	assert.Equal(t, []string{"mid.value=completed", "out.children=completed"}, c.journal.outcomes())
	assert.Equal(t, []string{"mid.value", "out.children"}, c.renderer.sources())
	for _, r := range c.journal.runs {
		assert.Equal(t, "g1", r.GroupID)
	}
}

func TestScheduler_HydrateOnlyOnce(t *testing.T) {
	c := newChain(t)
	c.s.Hydrate()
	c.s.Hydrate()
	waitIdle(t, c.s)

	assert.Equal(t, int32(1), c.outCalls.Load())
}

func TestScheduler_SetPropsNotifiesObservers(t *testing.T) {
	c := newChain(t, WithMaxConcurrent(1))
	c.s.Hydrate()
	waitIdle(t, c.s)

	require.True(t, c.s.SetProps(ident.NewPlain("in"), map[string]any{"value": 5.0}))
	waitIdle(t, c.s)

	assert.Equal(t, 10.0, prop(t, c.s, ident.NewPlain("mid"), "value"))
	assert.Equal(t, "10", prop(t, c.s, ident.NewPlain("out"), "children"))
	assert.Equal(t, int32(2), c.outCalls.Load())

	c.journal.mu.Lock()
	defer c.journal.mu.Unlock()
	require.Len(t, c.journal.updates, 5)
	edit := c.journal.updates[2]
	assert.Equal(t, store.SourceUser, edit.Source)
	assert.Equal(t, "in", edit.ItemID)
	assert.Equal(t, layout.Path{0}, edit.ItemPath)
	assert.Equal(t, "g2", edit.GroupID)
	assert.Equal(t, "g2", c.journal.updates[4].GroupID, "consequences join the edit's group")

	var last int64
	for _, u := range c.journal.updates {
		assert.Greater(t, u.Seq, last)
		last = u.Seq
	}
}

func TestScheduler_SetPropsUnknownComponent(t *testing.T) {
	c := newChain(t)
	c.s.SetProps(ident.NewPlain("ghost"), map[string]any{"value": 1})
	waitIdle(t, c.s)

	assert.Empty(t, c.journal.outcomes())
	assert.Empty(t, c.renderer.sources())
}

func TestScheduler_History(t *testing.T) {
	c := newChain(t)
	c.s.Hydrate()
	waitIdle(t, c.s)
	c.s.SetProps(ident.NewPlain("in"), map[string]any{"value": 5.0})
	waitIdle(t, c.s)

	c.s.MoveHistory(Undo)
	waitIdle(t, c.s)
	assert.Equal(t, 1.0, prop(t, c.s, ident.NewPlain("in"), "value"))
	assert.Equal(t, "2", prop(t, c.s, ident.NewPlain("out"), "children"))

	// Only the user edit was recorded; the undo itself was not.
	c.s.MoveHistory(Undo)
	waitIdle(t, c.s)
	assert.Equal(t, 1.0, prop(t, c.s, ident.NewPlain("in"), "value"))

	c.s.MoveHistory(Redo)
	waitIdle(t, c.s)
	assert.Equal(t, 5.0, prop(t, c.s, ident.NewPlain("in"), "value"))
	assert.Equal(t, "10", prop(t, c.s, ident.NewPlain("out"), "children"))

	c.s.MoveHistory(Revert)
	waitIdle(t, c.s)
	assert.Equal(t, 1.0, prop(t, c.s, ident.NewPlain("in"), "value"))

	c.s.MoveHistory(Redo)
	waitIdle(t, c.s)
	assert.Equal(t, 1.0, prop(t, c.s, ident.NewPlain("in"), "value"), "a reverted edit cannot be redone")

	assert.Contains(t, c.renderer.sources(), store.SourceHistory)
}

func TestScheduler_HistoryRecordsOnlyUserEdits(t *testing.T) {
	c := newChain(t)
	c.s.Hydrate()
	waitIdle(t, c.s)

	// The loop is idle after waitIdle, so its history can be read here.
	past, future := c.s.history.Len()
	assert.Zero(t, past, "hydration writes are not edits")
	assert.Zero(t, future)

	c.s.SetProps(ident.NewPlain("in"), map[string]any{"value": 5.0})
	waitIdle(t, c.s)
	past, _ = c.s.history.Len()
	assert.Equal(t, 1, past, "mid and out were written by callbacks")

	c.s.MoveHistory(Undo)
	waitIdle(t, c.s)
	past, future = c.s.history.Len()
	assert.Zero(t, past)
	assert.Equal(t, 1, future)
	assert.Equal(t, 2.0, prop(t, c.s, ident.NewPlain("mid"), "value"), "downstream recomputed from the restored edit")
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistory(2)
	for i := range 3 {
		h.Push(HistoryEntry{ID: ident.NewPlain(fmt.Sprint(i))})
	}
	past, future := h.Len()
	assert.Equal(t, 2, past)
	assert.Equal(t, 0, future)

	e, ok := h.Undo()
	require.True(t, ok)
	assert.Equal(t, "2", e.ID.String())
	e, ok = h.Undo()
	require.True(t, ok)
	assert.Equal(t, "1", e.ID.String())
	_, ok = h.Undo()
	assert.False(t, ok)

	h.Push(HistoryEntry{ID: ident.NewPlain("new")})
	_, ok = h.Redo()
	assert.False(t, ok, "a new edit clears the redo stack")

	none := NewHistory(0)
	none.Push(HistoryEntry{ID: ident.NewPlain("x")})
	_, ok = none.Undo()
	assert.False(t, ok)
}

func TestParseHistoryMove(t *testing.T) {
	for _, m := range []HistoryMove{Undo, Redo, Revert} {
		got, err := ParseHistoryMove(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
	_, err := ParseHistoryMove("SIDEWAYS")
	assert.Error(t, err)
}

func TestScheduler_MatchHydration(t *testing.T) {
	g := build(t, graph.Declaration{
		Output:             `{"index":MATCH,"type":"out"}.children`,
		Inputs:             []graph.Dependency{dep(ident.W("type", "in", "index", ident.Match), "value")},
		ClientsideFunction: clientside("upper"),
	})
	var calls atomic.Int32
	reg := executor.NewRegistry()
	reg.Register("test", "upper", func(_ *executor.CallbackContext, args ...any) (any, error) {
		calls.Add(1)
		return strings.ToUpper(args[0].(string)), nil
	})

	s := New(g, decode(t, `[
	  {"props": {"id": {"type": "in", "index": 1}, "value": "a"}},
	  {"props": {"id": {"type": "in", "index": 2}, "value": "b"}},
	  {"props": {"id": {"type": "out", "index": 1}}},
	  {"props": {"id": {"type": "out", "index": 2}}}
	]`), WithExecutor(executor.New(executor.WithRegistry(reg))))
	run(t, s)

	s.Hydrate()
	waitIdle(t, s)

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, "A", prop(t, s, ident.W("type", "out", "index", 1), "children"))
	assert.Equal(t, "B", prop(t, s, ident.W("type", "out", "index", 2), "children"))

	s.SetProps(ident.W("type", "in", "index", 2), map[string]any{"value": "z"})
	waitIdle(t, s)

	assert.Equal(t, int32(3), calls.Load(), "only the matching instance reruns")
	assert.Equal(t, "A", prop(t, s, ident.W("type", "out", "index", 1), "children"))
	assert.Equal(t, "Z", prop(t, s, ident.W("type", "out", "index", 2), "children"))
}

func TestScheduler_HydrationCycleReportedOnce(t *testing.T) {
	g := build(t,
		graph.Declaration{Output: "b.value", Inputs: []graph.Dependency{dep("a", "value")}, ClientsideFunction: clientside("inc")},
		graph.Declaration{Output: "a.value", Inputs: []graph.Dependency{dep("b", "value")}, ClientsideFunction: clientside("inc")},
	)
	var calls atomic.Int32
	reg := executor.NewRegistry()
	reg.Register("test", "inc", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		calls.Add(1)
		return 0, nil
	})
	rep := &memReporter{}

	s := New(g, decode(t, `[{"props": {"id": "a", "value": 0}}, {"props": {"id": "b", "value": 0}}]`),
		WithExecutor(executor.New(executor.WithRegistry(reg))),
		WithErrorReporter(rep),
	)
	run(t, s)

	s.Hydrate()
	s.Hydrate()
	waitIdle(t, s)

	errs := rep.all()
	require.Len(t, errs, 1)
	assert.True(t, graph.IsCycleError(errs[0]))
	assert.Zero(t, calls.Load())
}

func TestScheduler_QuotaStopsRunawayCycle(t *testing.T) {
	g := build(t,
		graph.Declaration{Output: "b.value", Inputs: []graph.Dependency{dep("a", "value")}, ClientsideFunction: clientside("inc")},
		graph.Declaration{Output: "a.value", Inputs: []graph.Dependency{dep("b", "value")}, ClientsideFunction: clientside("inc")},
	)
	reg := executor.NewRegistry()
	reg.Register("test", "inc", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return args[0].(float64) + 1, nil
	})
	rep := &memReporter{}

	s := New(g, decode(t, `[{"props": {"id": "a", "value": 0}}, {"props": {"id": "b", "value": 0}}]`),
		WithExecutor(executor.New(executor.WithRegistry(reg))),
		WithErrorReporter(rep),
		WithMaxSteps(5),
	)
	run(t, s)

	s.SetProps(ident.NewPlain("a"), map[string]any{"value": 0.0})
	waitIdle(t, s)

	errs := rep.all()
	require.Len(t, errs, 1)
	assert.True(t, IsStepsExceededError(errs[0]))
	assert.Equal(t, 5.0, prop(t, s, ident.NewPlain("b"), "value"))
	assert.Equal(t, 4.0, prop(t, s, ident.NewPlain("a"), "value"))
}

func TestScheduler_PreventUpdate(t *testing.T) {
	g := build(t, graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("in", "value")}, ClientsideFunction: clientside("stop")})
	reg := executor.NewRegistry()
	reg.Register("test", "stop", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return nil, executor.ErrPreventUpdate
	})
	journal := &memJournal{}

	s := New(g, decode(t, chainLayout), WithExecutor(executor.New(executor.WithRegistry(reg))), WithJournal(journal))
	run(t, s)
	s.Hydrate()
	waitIdle(t, s)

	assert.Nil(t, prop(t, s, ident.NewPlain("out"), "children"))
	assert.Equal(t, []string{"out.children=prevented"}, journal.outcomes())
	assert.Empty(t, journal.updates)
}

func TestScheduler_ExecutionErrorIsReported(t *testing.T) {
	g := build(t, graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("in", "value")}, ClientsideFunction: clientside("boom")})
	reg := executor.NewRegistry()
	reg.Register("test", "boom", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return nil, fmt.Errorf("boom")
	})
	journal := &memJournal{}
	var kinds []ErrorKind
	var mu sync.Mutex

	s := New(g, decode(t, chainLayout),
		WithExecutor(executor.New(executor.WithRegistry(reg))),
		WithJournal(journal),
		WithErrorReporter(ErrorReporterFunc(func(kind ErrorKind, _ *resolve.Callback, _ error) {
			mu.Lock()
			defer mu.Unlock()
			kinds = append(kinds, kind)
		})),
	)
	run(t, s)
	s.Hydrate()
	waitIdle(t, s)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ErrorKind{KindBackEnd}, kinds)
	assert.Equal(t, []string{"out.children=error"}, journal.outcomes())
	assert.Contains(t, journal.runs[0].Error, "boom")
}

func TestScheduler_NullCallWhenInputsLeaveMidway(t *testing.T) {
	// One result sets name.value, requesting "out", then removes name from
	// the layout before "out" can run.
	g := build(t,
		graph.Declaration{
			Output:             "..name.value...wrap.children..",
			Inputs:             []graph.Dependency{dep("btn", "n_clicks")},
			ClientsideFunction: clientside("clear"),
			PreventInitialCall: true,
		},
		graph.Declaration{
			Output:             "out.children",
			Inputs:             []graph.Dependency{dep("name", "value")},
			ClientsideFunction: clientside("never"),
			PreventInitialCall: true,
		},
	)
	reg := executor.NewRegistry()
	reg.Register("test", "clear", func(_ *executor.CallbackContext, _ ...any) (any, error) {
		return []any{"bye", []any{}}, nil
	})
	journal := &memJournal{}

	s := New(g, decode(t, `[
	  {"props": {"id": "btn", "n_clicks": 0}},
	  {"props": {"id": "wrap", "children": [{"props": {"id": "name", "value": "hi"}}]}},
	  {"props": {"id": "out", "children": null}}
	]`), WithExecutor(executor.New(executor.WithRegistry(reg))), WithJournal(journal))
	run(t, s)

	s.SetProps(ident.NewPlain("btn"), map[string]any{"n_clicks": 1.0})
	waitIdle(t, s)

	assert.Equal(t, []string{"..name.value...wrap.children..=completed", "out.children=null"}, journal.outcomes())
	assert.Nil(t, prop(t, s, ident.NewPlain("out"), "children"))
}

func TestScheduler_ReferenceErrorStopsRun(t *testing.T) {
	g := build(t, graph.Declaration{
		Output: "out.children",
		Inputs: []graph.Dependency{dep("in", "value")},
		State:  []graph.Dependency{dep("ghost", "value")},
	})
	s := New(g, decode(t, chainLayout))

	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()
	s.Hydrate()

	select {
	case err := <-errc:
		require.Error(t, err)
		assert.True(t, executor.IsReferenceError(err))
		assert.Contains(t, err.Error(), "A nonexistent object was used in an `State` of a callback")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	err := s.WaitIdle(context.Background())
	assert.True(t, executor.IsReferenceError(err))
	assert.False(t, s.SetProps(ident.NewPlain("in"), map[string]any{"value": 2}))
}

func TestScheduler_StopDrainsAndReturns(t *testing.T) {
	s := New(build(t), decode(t, chainLayout))
	errc := make(chan error, 1)
	go func() { errc <- s.Run(context.Background()) }()

	s.Stop()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.ErrorIs(t, s.WaitIdle(context.Background()), ErrStopped)
}

func TestScheduler_SupersededResultIsIgnored(t *testing.T) {
	g := build(t, graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("in", "value")}, PreventInitialCall: true})
	journal := &memJournal{}
	echo := execFunc(func(_ context.Context, _ *resolve.Callback, p *executor.Payload) executor.Result {
		return executor.Result{
			Data:    executor.Data{"out": {"children": p.Inputs[0].Value()}},
			Payload: p,
		}
	})
	s := New(g, decode(t, chainLayout), WithExecutor(echo), WithJournal(journal))
	ctx := context.Background()

	// Drive the loop by hand so both requests are made before either
	// result is processed.
	require.NoError(t, s.step(ctx, event{typ: eventSetProps, id: ident.NewPlain("in"), props: map[string]any{"value": "a"}}))
	require.NoError(t, s.step(ctx, event{typ: eventSetProps, id: ident.NewPlain("in"), props: map[string]any{"value": "b"}}))

	for range 2 {
		ev := nextEvent(t, s)
		require.Equal(t, eventCompletion, ev.typ)
		require.NoError(t, s.step(ctx, ev))
	}

	assert.Empty(t, s.executing)
	v, _ := s.tree.Prop(layout.Path{2}, "children")
	assert.Equal(t, "b", v)
	assert.Equal(t, []string{"out.children=superseded", "out.children=completed"}, journal.outcomes())
}

const chunkLayout = `[
  {"props": {"id": "btn", "n_clicks": 0}},
  {"props": {"id": "box", "children": null}},
  {"props": {"id": "mid", "value": null}},
  {"props": {"id": "out", "children": null}}
]`

func TestScheduler_ChildrenReplacementRequestsChunkCallbacks(t *testing.T) {
	tests := []struct {
		name     string
		mid      executor.Func
		outcomes []string
		out      any
	}{
		{
			name: "upstream changed",
			mid: func(_ *executor.CallbackContext, args ...any) (any, error) {
				return "got " + args[0].(string), nil
			},
			outcomes: []string{"box.children=completed", "mid.value=completed", "out.children=completed"},
			out:      "got x!",
		},
		{
			name: "upstream prevented",
			mid: func(_ *executor.CallbackContext, _ ...any) (any, error) {
				return nil, executor.ErrPreventUpdate
			},
			outcomes: []string{"box.children=completed", "mid.value=prevented", "out.children=pruned"},
			out:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := build(t,
				graph.Declaration{
					Output:             "box.children",
					Inputs:             []graph.Dependency{dep("btn", "n_clicks")},
					ClientsideFunction: clientside("fill"),
					PreventInitialCall: true,
				},
				graph.Declaration{Output: "mid.value", Inputs: []graph.Dependency{dep("name", "value")}, ClientsideFunction: clientside("mid")},
				graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("mid", "value")}, ClientsideFunction: clientside("out")},
			)
			var outCalls atomic.Int32
			reg := executor.NewRegistry()
			reg.Register("test", "fill", func(_ *executor.CallbackContext, _ ...any) (any, error) {
				return []any{map[string]any{"props": map[string]any{"id": "name", "value": "x"}}}, nil
			})
			reg.Register("test", "mid", tt.mid)
			reg.Register("test", "out", func(_ *executor.CallbackContext, args ...any) (any, error) {
				outCalls.Add(1)
				return fmt.Sprint(args[0]) + "!", nil
			})
			journal := &memJournal{}

			s := New(g, decode(t, chunkLayout), WithExecutor(executor.New(executor.WithRegistry(reg))), WithJournal(journal))
			run(t, s)
			s.SetProps(ident.NewPlain("btn"), map[string]any{"n_clicks": 1.0})
			waitIdle(t, s)

			assert.Equal(t, tt.outcomes, journal.outcomes())
			assert.Equal(t, tt.out, prop(t, s, ident.NewPlain("out"), "children"))
			assert.Equal(t, "x", prop(t, s, ident.NewPlain("name"), "value"))
			if tt.out == nil {
				assert.Zero(t, outCalls.Load())
			}
		})
	}
}

func TestScheduler_ResultForRemovedTargetIsStored(t *testing.T) {
	g := build(t, graph.Declaration{Output: "out.children", Inputs: []graph.Dependency{dep("in", "value")}, PreventInitialCall: true})
	journal := &memJournal{}
	gone := execFunc(func(_ context.Context, _ *resolve.Callback, p *executor.Payload) executor.Result {
		return executor.Result{Data: executor.Data{"vanished": {"children": "x"}}, Payload: p}
	})
	s := New(g, decode(t, chainLayout), WithExecutor(gone), WithJournal(journal))
	run(t, s)

	s.SetProps(ident.NewPlain("in"), map[string]any{"value": 2.0})
	waitIdle(t, s)

	assert.Equal(t, []string{"out.children=stored"}, journal.outcomes())
}

func TestQuotaEnforcer(t *testing.T) {
	q := NewQuotaEnforcer(2)
	require.NoError(t, q.Check("g"))
	require.NoError(t, q.Check("g"))
	err := q.Check("g")
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))
	assert.Contains(t, err.Error(), "execution group g exceeded max steps quota: 3 steps > 2 limit")
	assert.Equal(t, 3, q.Current())
}

func TestGroupGenerators(t *testing.T) {
	seq := NewSequenceGenerator("run-")
	assert.Equal(t, "run-1", seq.Generate())
	assert.Equal(t, "run-2", seq.Generate())

	a, b := UUIDv7Generator{}.Generate(), UUIDv7Generator{}.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
