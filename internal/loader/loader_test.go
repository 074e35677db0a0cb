package loader

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/ident"
)

func TestLoad_JSON(t *testing.T) {
	app, err := Load(filepath.Join("testdata", "app.json"))
	require.NoError(t, err)

	require.Len(t, app.Callbacks, 2)
	first := app.Callbacks[0]
	assert.Equal(t, "mid.value", first.Output)
	assert.Equal(t, &graph.ClientsideFunction{Namespace: "demo", FunctionName: "double"}, first.ClientsideFunction)
	require.Len(t, first.Inputs, 1)
	assert.Equal(t, "in", first.Inputs[0].ID.String())

	second := app.Callbacks[1]
	assert.True(t, second.PreventInitialCall)
	assert.True(t, second.Inputs[0].ID.Equal(ident.W("type", "cell", "index", ident.Match)))

	var c graph.Collector
	graph.Build(app.Callbacks, &c)
	assert.NoError(t, c.Err())
}

func TestLoad_FormatParity(t *testing.T) {
	want, err := Load(filepath.Join("testdata", "app.json"))
	require.NoError(t, err)

	for _, name := range []string{"app.yaml", "app.cue"} {
		t.Run(name, func(t *testing.T) {
			got, err := Load(filepath.Join("testdata", name))
			require.NoError(t, err)

			if diff := cmp.Diff(want.Layout, got.Layout); diff != "" {
				t.Errorf("layout mismatch (-json +%s):\n%s", name, diff)
			}
			require.Len(t, got.Callbacks, len(want.Callbacks))
			for i := range want.Callbacks {
				w, g := want.Callbacks[i], got.Callbacks[i]
				assert.Equal(t, w.Output, g.Output)
				assert.Equal(t, w.ClientsideFunction, g.ClientsideFunction)
				assert.Equal(t, w.PreventInitialCall, g.PreventInitialCall)
				assert.Equal(t, depStrings(w.Inputs), depStrings(g.Inputs))
				assert.Equal(t, depStrings(w.State), depStrings(g.State))
			}
		})
	}
}

func depStrings(deps []graph.Dependency) []string {
	out := make([]string, len(deps))
	for i, d := range deps {
		out[i] = ident.CombineIDAndProp(d.ID, d.Property)
	}
	return out
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing", filepath.Join("testdata", "nope.json"), ErrCodeNotFound},
		{"unsupported", filepath.Join("testdata", "app.toml"), ErrCodeFormat},
		{"broken yaml", filepath.Join("testdata", "broken.yaml"), ErrCodeDecode},
		{"incomplete cue", filepath.Join("testdata", "bad.cue"), ErrCodeBuildFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path)
			require.Error(t, err)
			var le *LoadError
			require.True(t, errors.As(err, &le), "got %T", err)
			assert.Equal(t, tt.code, le.Code)
		})
	}
}

func TestDecodeJSON_RequiresLayout(t *testing.T) {
	_, err := DecodeJSON([]byte(`{"callbacks": []}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no layout")

	_, err = DecodeJSON([]byte(`{"callbacks": [], "layout": [], "extra": 1}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown field")
}

func TestDecodeYAML_NonStringKeys(t *testing.T) {
	_, err := DecodeYAML([]byte("layout:\n  1: x\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "YAML key 1 is not a string")
}
