package cli

import (
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/executor"
	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/server"
)

// chainServer answers the two callbacks of testdata/app.json: mid doubles
// the input and out renders mid.
func chainServer(t *testing.T, withOut bool) *httptest.Server {
	t.Helper()
	s := server.New()
	s.Register("mid.value", func(_ *executor.CallbackContext, args ...any) (any, error) {
		return args[0].(float64) * 2, nil
	})
	if withOut {
		s.Register("out.children", func(_ *executor.CallbackContext, args ...any) (any, error) {
			return fmt.Sprintf("value %v", args[0]), nil
		})
	}
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return srv
}

func findProps(t *testing.T, root any, id string) map[string]any {
	t.Helper()
	for _, node := range root.([]any) {
		props := node.(map[string]any)["props"].(map[string]any)
		if props["id"] == id {
			return props
		}
	}
	t.Fatalf("no component %q", id)
	return nil
}

func TestRun_HydratesAndAppliesEdits(t *testing.T) {
	srv := chainServer(t, true)

	out, err := runCommand(t, NewRunCommand, "json",
		filepath.Join("testdata", "app.json"),
		"--server", srv.URL,
		"--set", "in.value=5",
	)
	require.NoError(t, err, out)

	var resp struct {
		Status string    `json:"status"`
		Data   RunResult `json:"data"`
	}
	require.NoError(t, decodeInto(out, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 10.0, findProps(t, resp.Data.Layout, "mid")["value"])
	assert.Equal(t, "value 10", findProps(t, resp.Data.Layout, "out")["children"])
	// mid and out at hydration, then in, mid and out for the edit.
	assert.Equal(t, 5, resp.Data.Updates)
	assert.Empty(t, resp.Data.Errors)
}

func TestRun_Undo(t *testing.T) {
	srv := chainServer(t, true)

	out, err := runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "app.json"),
		"--server", srv.URL,
		"--set", "in.value=5",
		"--set", "in.value=7",
		"--undo", "1",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, `"children": "value 10"`)
	assert.Contains(t, out, "11 update(s), 0 error(s)")
}

func TestRun_CallbackErrorsExitOne(t *testing.T) {
	srv := chainServer(t, false)

	out, err := runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "app.json"),
		"--server", srv.URL,
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "1 callback error(s)")
	// Only mid was applied.
	assert.Contains(t, out, "1 update(s), 1 error(s)")
	assert.Contains(t, out, "backEnd out.children")
}

func TestRun_ReferenceErrorFailsRun(t *testing.T) {
	srv := chainServer(t, true)

	out, err := runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "ghost.json"),
		"--server", srv.URL,
	)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.True(t, executor.IsReferenceError(err))
	assert.Contains(t, out, "Error ["+ErrCodeRunFailed+"]")
}

func TestRun_InvalidEdit(t *testing.T) {
	_, err := runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "app.json"),
		"--set", "in.value",
	)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestParseEdits(t *testing.T) {
	edits, err := parseEdits([]string{
		"in.value=1.5",
		`in.label="a=b"`,
		`{"index":2,"type":"cell"}.value={"x":[1]}`,
	})
	require.NoError(t, err)
	require.Len(t, edits, 3)

	assert.Equal(t, "in", edits[0].id.String())
	assert.Equal(t, "value", edits[0].prop)
	assert.Equal(t, 1.5, edits[0].value)

	assert.Equal(t, "label", edits[1].prop)
	assert.Equal(t, "a=b", edits[1].value)

	assert.True(t, edits[2].id.Equal(ident.W("index", 2, "type", "cell")))
	assert.Equal(t, "value", edits[2].prop)
	assert.Equal(t, map[string]any{"x": []any{1.0}}, edits[2].value)

	for _, bad := range []string{"in.value", "value=1", "in.value=nope"} {
		_, err := parseEdits([]string{bad})
		assert.Error(t, err, bad)
	}
}
