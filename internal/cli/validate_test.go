package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/graph"
	"github.com/roach88/reflow/internal/loader"
)

// runCommand executes the command built by newCmd and returns its stdout.
func runCommand(t *testing.T, newCmd func(*RootOptions) *cobra.Command, format string, args ...string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	cmd := newCmd(&RootOptions{Format: format})
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func decodeInto(out string, v any) error {
	return json.Unmarshal([]byte(out), v)
}

func TestValidate_Valid(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand, "text", filepath.Join("testdata", "app.json"))
	require.NoError(t, err)
	assert.Equal(t, "✓ 2 callback(s) valid\n", out)
}

func TestValidate_ValidJSON(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand, "json", filepath.Join("testdata", "app.json"))
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, map[string]any{"valid": true, "callbacks": 2.0}, resp.Data)
}

func TestValidate_DeclarationErrors(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand, "text", filepath.Join("testdata", "invalid.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeInvalidGraph)

	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, graph.TitleDuplicateOther)
}

func TestValidate_DeclarationErrorsJSON(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand, "json", filepath.Join("testdata", "invalid.json"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	assert.Equal(t, graph.TitleDuplicateOther, resp.Data.Errors[0].Title)
	assert.Equal(t, ErrCodeInvalidGraph, resp.Error.Code)
}

func TestValidate_Cycle(t *testing.T) {
	out, err := runCommand(t, NewValidateCommand, "text", filepath.Join("testdata", "cycle.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeCycle)
	assert.Contains(t, out, "dependency cycle found")
}

func TestValidate_LoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code string
	}{
		{"missing file", filepath.Join("testdata", "nope.json"), loader.ErrCodeNotFound},
		{"unsupported format", filepath.Join("testdata", "golden", "plan.golden"), loader.ErrCodeFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runCommand(t, NewValidateCommand, "json", tt.path)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))

			resp := decodeResponse(t, out)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestValidate_RequiresOneArg(t *testing.T) {
	_, err := runCommand(t, NewValidateCommand, "text")
	require.Error(t, err)
}

func TestValidate_VerboseDumpsGraph(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewValidateCommand(&RootOptions{Format: "text", Verbose: true})
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs([]string{filepath.Join("testdata", "app.json")})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "✓ 2 callback(s) valid\n", out.String())
	assert.Contains(t, errOut.String(), "valid: true\n")
	assert.Contains(t, errOut.String(), "] out.children\n")
}
