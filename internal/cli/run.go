package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/bus"
	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/loader"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/scheduler"
	"github.com/roach88/reflow/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Server         string
	Database       string
	Sets           []string
	Undo           int
	MaxConcurrent  int
	MaxSteps       int
	HistorySize    int
	RequestTimeout time.Duration

	// Groups overrides the execution group generator (for testing).
	Groups scheduler.GroupGenerator
}

// RunResult is the outcome of a run.
type RunResult struct {
	Layout  any      `json:"layout"`
	Updates int      `json:"updates"`
	Errors  []string `json:"errors,omitempty"`
}

// edit is one parsed --set flag.
type edit struct {
	id    ident.ID
	prop  string
	value any
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <app>",
		Short: "Hydrate a layout and run its callbacks until idle",
		Long: `Hydrate the app's layout, apply property edits, and run every callback
they trigger against a callback server. Prints the final layout.

Each --set edit is applied after the previous one settled, as a user edit
would be. --undo then steps back through the edits.

Example:
  reflow run ./app --server http://localhost:8050
  reflow run app.yaml --server http://localhost:8050 --set 'in.value=3' --db ./reflow.db`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApp(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Server, "server", "", "base URL of the callback server")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (optional)")
	cmd.Flags().StringArrayVar(&opts.Sets, "set", nil, "property edit as id.prop=json (repeatable)")
	cmd.Flags().IntVar(&opts.Undo, "undo", 0, "undo the last N edits after applying them")
	cmd.Flags().IntVar(&opts.MaxConcurrent, "max-concurrent", 0, "maximum callbacks in flight (0 = unlimited)")
	cmd.Flags().IntVar(&opts.MaxSteps, "max-steps", scheduler.DefaultMaxSteps, "maximum callback starts per execution group")
	cmd.Flags().IntVar(&opts.HistorySize, "history-size", scheduler.DefaultHistorySize, "number of edits kept for undo")
	cmd.Flags().DurationVar(&opts.RequestTimeout, "request-timeout", 30*time.Second, "timeout of one callback request")

	return cmd
}

func runApp(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	edits, err := parseEdits(opts.Sets)
	if err != nil {
		_ = formatter.Error(loader.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid --set", err)
	}

	loaded, err := loadApp(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	if !loaded.valid() {
		result := ValidationResult{Callbacks: len(loaded.App.Callbacks), Errors: loaded.Errors}
		if loaded.Cycle != nil {
			result.Cycle = loaded.Cycle.Path
		}
		return outputValidationErrors(formatter, result)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	schedOpts := []scheduler.Option{
		scheduler.WithExecutor(executor.New(
			executor.WithServerURL(opts.Server),
			executor.WithRequestTimeout(opts.RequestTimeout),
		)),
		scheduler.WithMaxConcurrent(opts.MaxConcurrent),
		scheduler.WithMaxSteps(opts.MaxSteps),
		scheduler.WithHistorySize(opts.HistorySize),
	}
	if opts.Groups != nil {
		schedOpts = append(schedOpts, scheduler.WithGroupGenerator(opts.Groups))
	}

	if opts.Database != "" {
		st, err := store.Open(opts.Database)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				slog.Error("error closing database", "error", closeErr)
			}
		}()
		last, err := st.LastSeq(ctx)
		if err != nil {
			_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to read database", err)
		}
		slog.Info("journal ready", "path", opts.Database, "last_seq", last)
		schedOpts = append(schedOpts, scheduler.WithJournal(st), scheduler.WithClock(scheduler.NewClockAt(last)))
	}

	updates := bus.New()
	subscription, err := updates.Subscribe(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to subscribe to updates", err)
	}
	applied := make(chan int, 1)
	go func() {
		n := 0
		for u := range subscription {
			n++
			formatter.VerboseLog("update %s %s from %s", u.ID, strings.Join(propNames(u.Props), ","), u.Source)
		}
		applied <- n
	}()
	schedOpts = append(schedOpts, scheduler.WithRenderer(updates))

	reporter := &countingReporter{formatter: formatter}
	schedOpts = append(schedOpts, scheduler.WithErrorReporter(reporter))

	s := scheduler.New(loaded.Graph, loaded.App.Layout, schedOpts...)
	runDone := make(chan error, 1)
	go func() {
		runDone <- s.Run(ctx)
	}()

	layout, runErr := drive(ctx, s, edits, opts.Undo)
	s.Stop()
	// A failed loop stops drive with ErrStopped; report why it failed.
	if err := <-runDone; err != nil {
		runErr = err
	}
	if err := updates.Close(); err != nil {
		slog.Warn("error closing update bus", "error", err)
	}
	result := RunResult{Layout: layout, Updates: <-applied, Errors: reporter.messages()}

	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			return WrapExitError(ExitFailure, "run interrupted", runErr)
		}
		_ = formatter.Error(ErrCodeRunFailed, runErr.Error(), nil)
		return WrapExitError(ExitFailure, "run failed", runErr)
	}

	if err := outputRun(formatter, result); err != nil {
		return err
	}
	if len(result.Errors) > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d callback error(s)", len(result.Errors)))
	}
	return nil
}

// drive hydrates, applies the edits and undos, each after the previous
// step went idle, and returns the final layout.
func drive(ctx context.Context, s *scheduler.Scheduler, edits []edit, undo int) (any, error) {
	s.Hydrate()
	if err := s.WaitIdle(ctx); err != nil {
		return nil, err
	}
	for _, e := range edits {
		slog.Debug("applying edit", "id", e.id.String(), "prop", e.prop)
		s.SetProps(e.id, map[string]any{e.prop: e.value})
		if err := s.WaitIdle(ctx); err != nil {
			return nil, err
		}
	}
	for range undo {
		s.MoveHistory(scheduler.Undo)
		if err := s.WaitIdle(ctx); err != nil {
			return nil, err
		}
	}
	return s.Snapshot(ctx)
}

// parseEdits parses --set values of the form id.prop=json. A wildcard id is
// written as its JSON string form.
func parseEdits(sets []string) ([]edit, error) {
	edits := make([]edit, 0, len(sets))
	for _, s := range sets {
		start := 0
		if strings.HasPrefix(s, "{") {
			start = max(strings.LastIndex(s, "}."), 0)
		}
		i := strings.Index(s[start:], "=")
		if i < 0 {
			return nil, fmt.Errorf("edit %q: expected id.prop=json", s)
		}
		target, raw := s[:start+i], s[start+i+1:]

		id, prop, err := ident.SplitIDAndProp(target)
		if err != nil {
			return nil, fmt.Errorf("edit %q: %w", s, err)
		}
		if id.IsZero() || prop == "" {
			return nil, fmt.Errorf("edit %q: expected id.prop=json", s)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return nil, fmt.Errorf("edit %q: value is not JSON: %w", s, err)
		}
		edits = append(edits, edit{id: id, prop: prop, value: value})
	}
	return edits, nil
}

func outputRun(f *OutputFormatter, result RunResult) error {
	if f.JSON() {
		return f.Success(result)
	}
	data, err := json.MarshalIndent(result.Layout, "", "  ")
	if err != nil {
		return fmt.Errorf("encode layout: %w", err)
	}
	fmt.Fprintln(f.Writer, string(data))
	fmt.Fprintf(f.Writer, "%d update(s), %d error(s)\n", result.Updates, len(result.Errors))
	for _, msg := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", msg)
	}
	return nil
}

// countingReporter collects the errors the scheduler logs and continues
// past.
type countingReporter struct {
	formatter *OutputFormatter

	mu   sync.Mutex
	errs []string
}

func (r *countingReporter) Report(kind scheduler.ErrorKind, cb *resolve.Callback, err error) {
	msg := fmt.Sprintf("%s: %v", kind, err)
	if cb != nil {
		msg = fmt.Sprintf("%s %s: %v", kind, cb.ResolvedID, err)
	}
	slog.Warn("callback error", "kind", string(kind), "error", err)
	r.formatter.VerboseLog("error %s", msg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, msg)
}

func (r *countingReporter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.errs...)
}

func propNames(props map[string]any) []string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
