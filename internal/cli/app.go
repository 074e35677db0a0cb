package cli

import (
	"errors"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/loader"
)

// Error codes of graph problems, next to the loader.ErrCode* values.
const (
	ErrCodeInvalidGraph = "E010"
	ErrCodeCycle        = "E011"
	ErrCodeRunFailed    = "E020"
	ErrCodeJournal      = "E030"
)

// loadedApp is an app definition with its callback graph built.
type loadedApp struct {
	App    *loader.App
	Graph  *graph.Graph
	Errors []*graph.DeclarationError
	// Cycle is set when the graph is valid but circular.
	Cycle *graph.CycleError
}

func (a *loadedApp) valid() bool {
	return len(a.Errors) == 0 && a.Cycle == nil
}

// loadApp reads the definition at path and builds its graph. Load failures
// are returned as errors; declaration problems are recorded on the result.
func loadApp(path string) (*loadedApp, error) {
	app, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	var collector graph.Collector
	g := graph.Build(app.Callbacks, &collector)
	loaded := &loadedApp{App: app, Graph: g, Errors: collector.Errors}
	if !g.Valid() {
		return loaded, nil
	}
	if _, err := g.OverallOrder(); err != nil {
		var cycle *graph.CycleError
		if !errors.As(err, &cycle) {
			return nil, err
		}
		loaded.Cycle = cycle
	}
	return loaded, nil
}

// loadFailure turns a loader error into the formatter output and exit code
// every command shares.
func loadFailure(f *OutputFormatter, err error) error {
	var loadErr *loader.LoadError
	if !errors.As(err, &loadErr) {
		_ = f.Error(loader.ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to load app", err)
	}
	var details any
	if loadErr.Pos.IsValid() {
		details = map[string]any{
			"file":   loadErr.Pos.Filename(),
			"line":   loadErr.Pos.Line(),
			"column": loadErr.Pos.Column(),
		}
	}
	_ = f.Error(loadErr.Code, loadErr.Message, details)
	return NewExitError(ExitCommandError, loadErr.Code+": "+loadErr.Message)
}
