package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/reflow/internal/graph"
)

// ValidationResult is the outcome of validating an app definition.
type ValidationResult struct {
	Valid     bool                      `json:"valid"`
	Callbacks int                       `json:"callbacks"`
	Errors    []*graph.DeclarationError `json:"errors,omitempty"`
	Cycle     []string                  `json:"cycle,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <app>",
		Short: "Check callback declarations and the dependency graph",
		Long: `Load an app definition (CUE package or file, YAML or JSON) and build its
callback graph.

Reports every declaration error, then looks for circular dependencies.
Exits 1 when the graph is invalid and 2 when the definition cannot be read.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	loaded, err := loadApp(path)
	if err != nil {
		return loadFailure(formatter, err)
	}
	formatter.VerboseLog("Loaded %d callback(s) from %s", len(loaded.App.Callbacks), path)

	result := ValidationResult{
		Valid:     loaded.valid(),
		Callbacks: len(loaded.App.Callbacks),
		Errors:    loaded.Errors,
	}
	if loaded.Cycle != nil {
		result.Cycle = loaded.Cycle.Path
	}

	if result.Valid {
		formatter.VerboseLog("%s", strings.TrimSuffix(loaded.Graph.Dump(), "\n"))
		if formatter.JSON() {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "✓ %d callback(s) valid\n", result.Callbacks)
		return nil
	}
	return outputValidationErrors(formatter, result)
}

func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	code, message := ErrCodeInvalidGraph, fmt.Sprintf("%d declaration error(s)", len(result.Errors))
	if len(result.Errors) == 0 {
		code, message = ErrCodeCycle, (&graph.CycleError{Path: result.Cycle}).Error()
	}
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("%s: %s", code, message))

	if f.JSON() {
		if err := f.Failure(code, message, result); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(f.Writer, "✗ Validation failed")
	fmt.Fprintln(f.Writer)
	for _, e := range result.Errors {
		fmt.Fprintf(f.Writer, "  %s\n", e.Title)
		for _, line := range e.Lines {
			fmt.Fprintf(f.Writer, "    %s\n", line)
		}
		fmt.Fprintln(f.Writer)
	}
	if len(result.Cycle) > 0 {
		fmt.Fprintf(f.Writer, "  %s: %s\n", ErrCodeCycle, message)
	}
	return exitErr
}
