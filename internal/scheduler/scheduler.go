package scheduler

import (
	"context"
	"log/slog"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/store"
)

// Executor runs one prepared callback. *executor.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, cb *resolve.Callback, p *executor.Payload) executor.Result
}

// UpdateProps is the action handed to the rendering collaborator for every
// applied update: set Props on the component at ItemPath.
type UpdateProps struct {
	ItemPath layout.Path    `json:"itempath"`
	ID       ident.ID       `json:"id"`
	Props    map[string]any `json:"props"`
	// Source is "user", "history" or the resolved id of the callback.
	Source string `json:"source"`
}

// Renderer receives UpdateProps actions, in apply order, from the loop
// goroutine. The loop waits for each call to return, so a renderer that
// blocks holds up every edit, completion and history move behind it. ctx
// is derived from the one given to Run. bus.Bus blocks only once a
// subscriber lags further behind than its buffer.
type Renderer interface {
	UpdateProps(ctx context.Context, u UpdateProps) error
}

// Journal records run outcomes and applied updates. *store.Store
// implements it.
type Journal interface {
	WriteRun(ctx context.Context, r store.Run) error
	WriteUpdate(ctx context.Context, u store.Update) (bool, error)
}

// Scheduler is the single-writer callback event loop.
//
// A Scheduler is built over an immutable graph and a private copy of the
// layout. Outside goroutines talk to it only through events; the layout,
// the request queues, the history and the quotas belong to Run.
//
// Thread-safety model:
//   - SetProps, Hydrate, MoveHistory, WaitIdle, Snapshot, Stop: any goroutine
//   - Run: exactly one goroutine, exactly once
type Scheduler struct {
	graph *graph.Graph
	tree  *layout.Tree
	index *layout.Index

	queue    *eventQueue
	clock    *Clock
	groups   GroupGenerator
	exec     Executor
	renderer Renderer
	journal  Journal
	reporter ErrorReporter
	history  *History

	maxConcurrent int
	maxSteps      int

	requested []*resolve.Callback
	executing map[string]*execution
	// followers are callbacks requested only because they read an output
	// of a newly inserted chunk's callbacks.
	followers map[string]bool
	quotas    map[string]*QuotaEnforcer
	waiters   []chan struct{}
	hydrated  bool

	done   chan struct{}
	runErr error
}

type execution struct {
	cb    *resolve.Callback
	token int64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithExecutor sets how callbacks run. The default runs clientside
// functions only, from an empty registry.
func WithExecutor(e Executor) Option {
	return func(s *Scheduler) {
		s.exec = e
	}
}

// WithRenderer sets the receiver of UpdateProps actions.
func WithRenderer(r Renderer) Option {
	return func(s *Scheduler) {
		s.renderer = r
	}
}

// WithJournal records every run outcome and applied update.
func WithJournal(j Journal) Option {
	return func(s *Scheduler) {
		s.journal = j
	}
}

// WithErrorReporter replaces the default slog reporter.
func WithErrorReporter(r ErrorReporter) Option {
	return func(s *Scheduler) {
		s.reporter = r
	}
}

// WithMaxConcurrent bounds the callbacks executing at once.
//
// Default: 0, no bound; callbacks with disjoint outputs all start together.
// Use WithMaxConcurrent(1) for a deterministic journal, as the conformance
// harness does.
func WithMaxConcurrent(n int) Option {
	return func(s *Scheduler) {
		s.maxConcurrent = n
	}
}

// WithHistorySize sets how many user edits can be undone.
func WithHistorySize(n int) Option {
	return func(s *Scheduler) {
		s.history = NewHistory(n)
	}
}

// WithMaxSteps bounds the callbacks one execution group may start.
//
// Default: 1000 (DefaultMaxSteps). Every start past the limit is reported
// as a *StepsExceededError and journaled as an error; the rest of the group
// still drains.
func WithMaxSteps(n int) Option {
	return func(s *Scheduler) {
		s.maxSteps = n
	}
}

// WithClock sets the logical clock, e.g. to resume after a journal's last
// seq.
func WithClock(c *Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithGroupGenerator replaces the UUIDv7 execution group ids.
func WithGroupGenerator(g GroupGenerator) Option {
	return func(s *Scheduler) {
		s.groups = g
	}
}

// New creates a Scheduler for graph g over a copy of the layout root.
//
// Nothing runs until Run is called, and no callback is requested until
// Hydrate or an edit arrives. Without options the scheduler executes
// clientside functions from an empty registry, reports errors through slog,
// keeps DefaultHistorySize edits and names groups with UUIDv7s.
func New(g *graph.Graph, root any, opts ...Option) *Scheduler {
	tree := layout.NewTree(layout.CloneValue(root))
	s := &Scheduler{
		graph:     g,
		tree:      tree,
		index:     layout.Compute(tree.Root(), nil, nil),
		queue:     newEventQueue(),
		clock:     NewClock(),
		groups:    UUIDv7Generator{},
		exec:      executor.New(),
		reporter:  logReporter{},
		history:   NewHistory(DefaultHistorySize),
		maxSteps:  DefaultMaxSteps,
		executing: make(map[string]*execution),
		followers: make(map[string]bool),
		quotas:    make(map[string]*QuotaEnforcer),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetProps submits a user edit of the component id.
// Returns false if the scheduler has stopped.
func (s *Scheduler) SetProps(id ident.ID, props map[string]any) bool {
	return s.queue.Enqueue(event{typ: eventSetProps, id: id, props: props})
}

// Hydrate requests the initial calls of every callback whose outputs are
// in the layout. Only the first call has an effect.
func (s *Scheduler) Hydrate() bool {
	return s.queue.Enqueue(event{typ: eventHydrate})
}

// MoveHistory submits an undo, redo or revert.
func (s *Scheduler) MoveHistory(m HistoryMove) bool {
	return s.queue.Enqueue(event{typ: eventMoveHistory, move: m})
}

// WaitIdle blocks until no callback is requested or executing. If Run
// returns first, WaitIdle returns Run's error, or ErrStopped.
func (s *Scheduler) WaitIdle(ctx context.Context) error {
	idle := make(chan struct{})
	if !s.queue.Enqueue(event{typ: eventWaitIdle, idle: idle}) {
		return s.stoppedErr()
	}
	select {
	case <-idle:
		return nil
	case <-s.done:
		return s.stoppedErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a deep copy of the current layout.
func (s *Scheduler) Snapshot(ctx context.Context) (any, error) {
	reply := make(chan any, 1)
	if !s.queue.Enqueue(event{typ: eventSnapshot, snapshot: reply}) {
		return nil, s.stoppedErr()
	}
	select {
	case root := <-reply:
		return root, nil
	case <-s.done:
		return nil, s.stoppedErr()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Scheduler) stoppedErr() error {
	select {
	case <-s.done:
		if s.runErr != nil {
			return s.runErr
		}
	default:
	}
	return ErrStopped
}

// Stop closes the event queue; Run returns once it is drained.
func (s *Scheduler) Stop() {
	s.queue.Close()
}

// Run is the event loop. It blocks until ctx is cancelled, Stop is called
// and the queue drained, or a callback hits a *executor.ReferenceError,
// which is returned.
//
// Any other error is reported and the loop continues.
func (s *Scheduler) Run(ctx context.Context) (err error) {
	slog.Info("scheduler starting", "callbacks", len(s.graph.Callbacks()), "components", s.index.Len())

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.runErr = err
		close(s.done)
	}()

	for {
		ev, ok := s.queue.TryDequeue()
		if ok {
			if err := s.step(ctx, ev); err != nil {
				s.queue.Close()
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping: context cancelled")
			s.queue.Close()
			return ctx.Err()

		case <-s.queue.Wait():
			if s.queue.Closed() && s.queue.Len() == 0 {
				slog.Info("scheduler stopping: queue closed")
				return nil
			}
		}
	}
}

// step processes one event and pumps. Only reference errors are returned.
func (s *Scheduler) step(ctx context.Context, ev event) error {
	if err := s.process(ctx, ev); err != nil {
		if executor.IsReferenceError(err) {
			return err
		}
		logEventError(ev, err)
	}
	if err := s.pump(ctx); err != nil {
		slog.Error("scheduler stopping: reference error", "error", err)
		return err
	}
	s.releaseIdle()
	return nil
}

func (s *Scheduler) process(ctx context.Context, ev event) error {
	switch ev.typ {
	case eventSetProps:
		return s.setProps(ctx, ev.id, ev.props)
	case eventHydrate:
		return s.hydrate(ctx)
	case eventCompletion:
		return s.complete(ctx, ev.completion)
	case eventMoveHistory:
		return s.moveHistory(ctx, ev.move)
	case eventWaitIdle:
		s.waiters = append(s.waiters, ev.idle)
		return nil
	case eventSnapshot:
		ev.snapshot <- layout.CloneValue(s.tree.Root())
		return nil
	default:
		return errUnknownEvent(ev.typ)
	}
}

func (s *Scheduler) releaseIdle() {
	if len(s.requested) > 0 || len(s.executing) > 0 {
		return
	}
	for _, w := range s.waiters {
		close(w)
	}
	s.waiters = nil
	clear(s.quotas)
}
