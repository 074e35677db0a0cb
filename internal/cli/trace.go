package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/loader"
	"github.com/roach88/reflow/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Group    string // optional - only this execution group
}

// TraceEvent is one journal row: a callback run or a prop update.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Type string `json:"type"` // "run" or "update"

	ResolvedID string   `json:"resolved_id,omitempty"`
	Outcome    string   `json:"outcome,omitempty"`
	Priority   string   `json:"priority,omitempty"`
	Triggers   []string `json:"triggers,omitempty"`
	Error      string   `json:"error,omitempty"`

	Source   string         `json:"source,omitempty"`
	ItemID   string         `json:"item_id,omitempty"`
	ItemPath string         `json:"item_path,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
}

// TraceGroup is the timeline of one execution group.
type TraceGroup struct {
	GroupID  string       `json:"group_id"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats summarizes a group.
type TraceStats struct {
	Runs     int            `json:"runs"`
	Updates  int            `json:"updates"`
	Outcomes map[string]int `json:"outcomes,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Groups []TraceGroup `json:"groups"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Print the journal of past runs",
		Long: `Print the dispatch journal written by 'reflow run --db'.

Events are grouped by execution group: the edit or hydration that started
them plus every callback it triggered. Within a group, callback outcomes
and the prop updates they applied are listed in sequence order.

Examples:
  reflow trace --db ./reflow.db
  reflow trace --db ./reflow.db --group 0192b3c4-...
  reflow trace --db ./reflow.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	cmd.Flags().StringVar(&opts.Group, "group", "", "only show this execution group")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if opts.Database == "" {
		_ = formatter.Error(loader.ErrCodeGeneric, "--db is required", nil)
		return NewExitError(ExitCommandError, "--db is required")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		_ = formatter.Error(ErrCodeJournal, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	groups, err := st.Groups(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list groups", err)
	}
	if opts.Group != "" {
		if !slices.Contains(groups, opts.Group) {
			groups = nil
		} else {
			groups = []string{opts.Group}
		}
	}

	result := TraceResult{Groups: []TraceGroup{}}
	for _, id := range groups {
		group, err := buildGroup(ctx, st, id)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read journal", err)
		}
		result.Groups = append(result.Groups, group)
	}
	formatter.VerboseLog("Read %d group(s) from %s", len(result.Groups), opts.Database)

	if formatter.JSON() {
		return formatter.Success(result)
	}
	writeTrace(formatter.Writer, result, opts.Verbose)
	return nil
}

// buildGroup merges the runs and updates of one group by sequence number.
func buildGroup(ctx context.Context, st *store.Store, groupID string) (TraceGroup, error) {
	runs, err := st.Runs(ctx, groupID)
	if err != nil {
		return TraceGroup{}, err
	}
	updates, err := st.Updates(ctx, groupID)
	if err != nil {
		return TraceGroup{}, err
	}

	group := TraceGroup{
		GroupID:  groupID,
		Timeline: make([]TraceEvent, 0, len(runs)+len(updates)),
		Stats:    TraceStats{Runs: len(runs), Updates: len(updates), Outcomes: map[string]int{}},
	}
	for _, r := range runs {
		group.Stats.Outcomes[string(r.Outcome)]++
		group.Timeline = append(group.Timeline, TraceEvent{
			Seq:        r.Seq,
			Type:       "run",
			ResolvedID: r.ResolvedID,
			Outcome:    string(r.Outcome),
			Priority:   r.Priority,
			Triggers:   r.Triggers,
			Error:      r.Error,
		})
	}
	for _, u := range updates {
		group.Timeline = append(group.Timeline, TraceEvent{
			Seq:      u.Seq,
			Type:     "update",
			Source:   u.Source,
			ItemID:   u.ItemID,
			ItemPath: u.ItemPath.String(),
			Props:    u.Props,
		})
	}
	sort.SliceStable(group.Timeline, func(i, j int) bool {
		return group.Timeline[i].Seq < group.Timeline[j].Seq
	})
	return group, nil
}

func writeTrace(w io.Writer, result TraceResult, verbose bool) {
	if len(result.Groups) == 0 {
		fmt.Fprintln(w, "No events recorded.")
		return
	}
	for i, g := range result.Groups {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "=== Group %s ===\n", g.GroupID)
		for _, e := range g.Timeline {
			writeTraceEvent(w, e, verbose)
		}
		fmt.Fprintf(w, "  runs: %d (%s), updates: %d\n", g.Stats.Runs, formatOutcomes(g.Stats.Outcomes), g.Stats.Updates)
	}
}

func writeTraceEvent(w io.Writer, e TraceEvent, verbose bool) {
	switch e.Type {
	case "run":
		fmt.Fprintf(w, "  [%d] RUN %s %s\n", e.Seq, e.ResolvedID, e.Outcome)
		if e.Error != "" {
			fmt.Fprintf(w, "       Error: %s\n", e.Error)
		}
		if verbose {
			fmt.Fprintf(w, "       Priority: %s\n", e.Priority)
			if len(e.Triggers) > 0 {
				fmt.Fprintf(w, "       Triggers: %s\n", strings.Join(e.Triggers, ", "))
			}
		}
	case "update":
		fmt.Fprintf(w, "  [%d] SET %s %s <- %s\n", e.Seq, e.ItemID, formatArgs(e.Props), e.Source)
		if verbose {
			fmt.Fprintf(w, "       Path: %s\n", e.ItemPath)
		}
	}
}

func formatOutcomes(outcomes map[string]int) string {
	if len(outcomes) == 0 {
		return "none"
	}
	keys := make([]string, 0, len(outcomes))
	for k := range outcomes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, outcomes[k])
	}
	return strings.Join(parts, " ")
}

// formatArgs formats props for display with sorted keys.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%s", k, formatValue(args[k]))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}
