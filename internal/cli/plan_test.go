package cli

import (
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Golden(t *testing.T) {
	out, err := runCommand(t, NewPlanCommand, "text", filepath.Join("testdata", "app.json"))
	require.NoError(t, err)

	gold := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	gold.Assert(t, "plan", []byte(out))
}

func TestPlan_JSON(t *testing.T) {
	out, err := runCommand(t, NewPlanCommand, "json", filepath.Join("testdata", "app.json"))
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   []PlanEntry `json:"data"`
	}
	require.NoError(t, decodeInto(out, &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, []PlanEntry{
		{ResolvedID: "out.children", Priority: "0", Ready: false, InitialCall: true, Triggers: []string{}},
		{ResolvedID: "mid.value", Priority: "11", Ready: true, InitialCall: true, Triggers: []string{}},
	}, resp.Data)
}

func TestPlan_InvalidGraph(t *testing.T) {
	_, err := runCommand(t, NewPlanCommand, "text", filepath.Join("testdata", "cycle.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
