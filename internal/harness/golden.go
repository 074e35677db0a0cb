package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/reflow/internal/store"
)

// RenderTrace renders a trace one event per line, without seqs:
//
//	g1 update mid {"value":2} <- mid.value
//	g1 run mid.value completed
//
// Props are canonical JSON, so the text is stable across runs.
func RenderTrace(trace []TraceEvent) string {
	var buf strings.Builder
	for _, e := range trace {
		switch e.Type {
		case EventRun:
			fmt.Fprintf(&buf, "%s run %s %s", e.GroupID, e.ResolvedID, e.Outcome)
			if e.Error != "" {
				fmt.Fprintf(&buf, ": %s", e.Error)
			}
		case EventUpdate:
			props, err := store.MarshalCanonical(e.Props)
			if err != nil {
				props = []byte(fmt.Sprintf("%v", e.Props))
			}
			fmt.Fprintf(&buf, "%s update %s %s <- %s", e.GroupID, e.ItemID, props, e.Source)
		}
		buf.WriteByte('\n')
	}
	return buf.String()
}

// RunWithGolden executes a scenario and compares the trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, []byte(RenderTrace(result.Trace)))
}
