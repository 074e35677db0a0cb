package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/loader"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/scheduler"
	"github.com/roach88/reflow/internal/store"
)

// Harness runs scenarios. The zero value is not usable; create one with
// New.
type Harness struct {
	registry *executor.Registry
	logger   *slog.Logger
}

// Option configures a Harness.
type Option func(*Harness)

// WithRegistry replaces the built-in clientside functions.
func WithRegistry(r *executor.Registry) Option {
	return func(h *Harness) {
		h.registry = r
	}
}

// WithLogger sets the logger for scenario progress.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = l
	}
}

// New creates a Harness serving callbacks from Builtins.
func New(opts ...Option) *Harness {
	h := &Harness{
		registry: Builtins(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run executes a scenario with a default Harness.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	return New().Run(ctx, scenario)
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory journal. Group ids are g1, g2,
// ... in the order hydration and the flow steps start them, and at most
// one callback executes at a time, so traces are reproducible.
//
// Execution flow:
//  1. Load the app and build its graph
//  2. Hydrate and wait for the scheduler to settle
//  3. Apply each flow step, settling after each
//  4. Read the trace back from the journal and evaluate assertions
//
// An error is returned when the scenario could not run at all; failed
// assertions only mark the result.
func (h *Harness) Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	app, err := loader.Load(scenario.App)
	if err != nil {
		return nil, fmt.Errorf("load app: %w", err)
	}

	var sink graph.Collector
	g := graph.Build(app.Callbacks, &sink)
	if !g.Valid() {
		return nil, fmt.Errorf("invalid callback graph: %w", errors.Join(declarationErrors(sink.Errors)...))
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	rep := &collectingReporter{}
	opts := []scheduler.Option{
		scheduler.WithExecutor(executor.New(executor.WithRegistry(h.registry))),
		scheduler.WithJournal(st),
		scheduler.WithErrorReporter(rep),
		scheduler.WithMaxConcurrent(1),
		scheduler.WithGroupGenerator(scheduler.NewSequenceGenerator("g")),
	}
	if scenario.MaxSteps > 0 {
		opts = append(opts, scheduler.WithMaxSteps(scenario.MaxSteps))
	}
	sched := scheduler.New(g, app.Layout, opts...)

	runDone := make(chan error, 1)
	go func() {
		runDone <- sched.Run(ctx)
	}()

	root, driveErr := h.drive(ctx, sched, scenario)
	sched.Stop()
	if err := <-runDone; err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	if driveErr != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, driveErr)
	}

	result := NewResult()
	result.Layout = root
	result.Reported = rep.messages()
	if err := readTrace(ctx, st, result); err != nil {
		return nil, err
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace),
	)
	return result, nil
}

// drive hydrates, applies the flow and returns the final layout.
func (h *Harness) drive(ctx context.Context, sched *scheduler.Scheduler, scenario *Scenario) (any, error) {
	sched.Hydrate()
	if err := sched.WaitIdle(ctx); err != nil {
		return nil, fmt.Errorf("hydrate: %w", err)
	}

	for i, step := range scenario.Flow {
		switch {
		case step.Set != nil:
			id, err := ident.FromAny(step.Set.ID)
			if err != nil {
				return nil, fmt.Errorf("flow[%d]: %w", i, err)
			}
			h.logger.Debug("set props", "step", i, "id", id.String())
			sched.SetProps(id, step.Set.Props)
		default:
			move, err := scheduler.ParseHistoryMove(strings.ToUpper(step.History))
			if err != nil {
				return nil, fmt.Errorf("flow[%d]: %w", i, err)
			}
			h.logger.Debug("move history", "step", i, "move", move.String())
			sched.MoveHistory(move)
		}
		if err := sched.WaitIdle(ctx); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	return sched.Snapshot(ctx)
}

// readTrace merges runs and updates from the journal in seq order.
func readTrace(ctx context.Context, st *store.Store, result *Result) error {
	runs, err := st.Runs(ctx, "")
	if err != nil {
		return fmt.Errorf("read runs: %w", err)
	}
	updates, err := st.Updates(ctx, "")
	if err != nil {
		return fmt.Errorf("read updates: %w", err)
	}
	for _, r := range runs {
		result.AddRun(r)
	}
	for _, u := range updates {
		result.AddUpdate(u)
	}
	sort.SliceStable(result.Trace, func(i, j int) bool {
		return result.Trace[i].Seq < result.Trace[j].Seq
	})
	return nil
}

func declarationErrors(errs []*graph.DeclarationError) []error {
	out := make([]error, len(errs))
	for i, e := range errs {
		out[i] = e
	}
	return out
}

// collectingReporter keeps reported errors for the result. It is called
// from the scheduler loop only, but read after the loop stopped.
type collectingReporter struct {
	mu   sync.Mutex
	msgs []string
}

func (r *collectingReporter) Report(kind scheduler.ErrorKind, cb *resolve.Callback, err error) {
	msg := string(kind)
	if cb != nil {
		msg += " " + cb.ResolvedID
	}
	r.mu.Lock()
	r.msgs = append(r.msgs, msg+": "+err.Error())
	r.mu.Unlock()
}

func (r *collectingReporter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.msgs...)
}
