package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/resolve"
)

// PlanEntry is one initial callback of the hydration plan.
type PlanEntry struct {
	ResolvedID  string   `json:"resolved_id"`
	Priority    string   `json:"priority"`
	Ready       bool     `json:"ready"`
	InitialCall bool     `json:"initial_call"`
	Triggers    []string `json:"triggers"`
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan <app>",
		Short: "Show the callbacks hydration would request",
		Long: `Resolve the initial calls of an app's layout without running anything.

Callbacks are listed in execution priority order. READY marks those that
could start at once; the others wait for an upstream callback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runPlan(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

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

	plan := hydrationPlan(loaded)
	formatter.VerboseLog("Hydration requests %d callback(s)", len(plan))
	if formatter.JSON() {
		return formatter.Success(plan)
	}
	return writePlan(formatter.Writer, plan)
}

// hydrationPlan lists the callbacks hydration requests, ordered the way the
// scheduler orders them.
func hydrationPlan(loaded *loadedApp) []PlanEntry {
	root := loaded.App.Layout
	ix := layout.Compute(root, nil, nil)
	cbs := resolve.LayoutCallbacks(loaded.Graph, ix, root, resolve.LayoutOptions{OutputsOnly: true})
	for _, cb := range cbs {
		cb.Priority = resolve.Priority(loaded.Graph, ix, cb)
	}
	slices.SortStableFunc(cbs, resolve.ComparePriority)

	ready := make(map[string]bool)
	for _, cb := range resolve.Ready(ix, cbs, cbs, loaded.Graph) {
		ready[cb.ResolvedID] = true
	}

	plan := make([]PlanEntry, len(cbs))
	for i, cb := range cbs {
		plan[i] = PlanEntry{
			ResolvedID:  cb.ResolvedID,
			Priority:    cb.Priority,
			Ready:       ready[cb.ResolvedID],
			InitialCall: cb.InitialCall,
			Triggers:    cb.Triggers(),
		}
	}
	return plan
}

func writePlan(w io.Writer, plan []PlanEntry) error {
	if len(plan) == 0 {
		_, err := fmt.Fprintln(w, "No initial callbacks.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PRIORITY\tREADY\tINITIAL\tCALLBACK\tTRIGGERS")
	for _, e := range plan {
		triggers := "-"
		if len(e.Triggers) > 0 {
			triggers = strings.Join(e.Triggers, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", e.Priority, yesNo(e.Ready), yesNo(e.InitialCall), e.ResolvedID, triggers)
	}
	return tw.Flush()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
