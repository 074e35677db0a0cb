package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/store"
)

func seedJournal(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "reflow.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	_, err = st.WriteUpdate(ctx, store.Update{
		Seq: 1, GroupID: "g1", Source: store.SourceUser,
		ItemID: "in", ItemPath: layout.Path{0}, Props: map[string]any{"value": 5.0},
	})
	require.NoError(t, err)
	require.NoError(t, st.WriteRun(ctx, store.Run{
		Seq: 3, GroupID: "g1", ResolvedID: "mid.value", Outcome: store.OutcomeCompleted,
		Priority: "11", Triggers: []string{"in.value"},
	}))
	_, err = st.WriteUpdate(ctx, store.Update{
		Seq: 4, GroupID: "g1", Source: "mid.value",
		ItemID: "mid", ItemPath: layout.Path{1}, Props: map[string]any{"value": 10.0},
	})
	require.NoError(t, err)
	require.NoError(t, st.WriteRun(ctx, store.Run{
		Seq: 6, GroupID: "g1", ResolvedID: "out.children", Outcome: store.OutcomeError,
		Priority: "0", Triggers: []string{"mid.value"}, Error: "HTTP 500",
	}))
	require.NoError(t, st.WriteRun(ctx, store.Run{
		Seq: 7, GroupID: "g2", ResolvedID: "mid.value", Outcome: store.OutcomePrevented, Priority: "11",
	}))
	return dbPath
}

func TestTrace_Text(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runCommand(t, NewTraceCommand, "text", "--db", dbPath)
	require.NoError(t, err)
	assert.Equal(t, `=== Group g1 ===
  [1] SET in {value=5} <- user
  [3] RUN mid.value completed
  [4] SET mid {value=10} <- mid.value
  [6] RUN out.children error
       Error: HTTP 500
  runs: 2 (completed=1 error=1), updates: 2

=== Group g2 ===
  [7] RUN mid.value prevented
  runs: 1 (prevented=1), updates: 0
`, out)
}

func TestTrace_GroupFilterJSON(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runCommand(t, NewTraceCommand, "json", "--db", dbPath, "--group", "g1")
	require.NoError(t, err)

	var resp struct {
		Status string      `json:"status"`
		Data   TraceResult `json:"data"`
	}
	require.NoError(t, decodeInto(out, &resp))
	require.Len(t, resp.Data.Groups, 1)

	g := resp.Data.Groups[0]
	assert.Equal(t, "g1", g.GroupID)
	assert.Equal(t, TraceStats{Runs: 2, Updates: 2, Outcomes: map[string]int{"completed": 1, "error": 1}}, g.Stats)

	seqs := make([]int64, len(g.Timeline))
	for i, e := range g.Timeline {
		seqs[i] = e.Seq
	}
	assert.Equal(t, []int64{1, 3, 4, 6}, seqs)
	assert.Equal(t, "[1]", g.Timeline[2].ItemPath)
	assert.Equal(t, []string{"in.value"}, g.Timeline[1].Triggers)
}

func TestTrace_UnknownGroupIsEmpty(t *testing.T) {
	dbPath := seedJournal(t)

	out, err := runCommand(t, NewTraceCommand, "text", "--db", dbPath, "--group", "nope")
	require.NoError(t, err)
	assert.Equal(t, "No events recorded.\n", out)
}

func TestTrace_MissingDatabaseFlag(t *testing.T) {
	_, err := runCommand(t, NewTraceCommand, "text")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "--db is required")
}

func TestTrace_AfterRun(t *testing.T) {
	srv := chainServer(t, true)
	dbPath := filepath.Join(t.TempDir(), "reflow.db")

	_, err := runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "app.json"),
		"--server", srv.URL,
		"--db", dbPath,
		"--set", "in.value=5",
	)
	require.NoError(t, err)

	out, err := runCommand(t, NewTraceCommand, "json", "--db", dbPath)
	require.NoError(t, err)

	var resp struct {
		Data TraceResult `json:"data"`
	}
	require.NoError(t, decodeInto(out, &resp))
	require.Len(t, resp.Data.Groups, 2, "hydration and the edit")

	hydration, edit := resp.Data.Groups[0], resp.Data.Groups[1]
	assert.Equal(t, TraceStats{Runs: 2, Updates: 2, Outcomes: map[string]int{"completed": 2}}, hydration.Stats)
	assert.Equal(t, TraceStats{Runs: 2, Updates: 3, Outcomes: map[string]int{"completed": 2}}, edit.Stats)
	assert.Equal(t, store.SourceUser, edit.Timeline[0].Source)

	// A second run continues the sequence.
	_, err = runCommand(t, NewRunCommand, "text",
		filepath.Join("testdata", "app.json"),
		"--server", srv.URL,
		"--db", dbPath,
	)
	require.NoError(t, err)

	out, err = runCommand(t, NewTraceCommand, "json", "--db", dbPath)
	require.NoError(t, err)
	require.NoError(t, decodeInto(out, &resp))
	require.Len(t, resp.Data.Groups, 3)
	last := resp.Data.Groups[2].Timeline[0].Seq
	prev := edit.Timeline[len(edit.Timeline)-1].Seq
	assert.Greater(t, last, prev)
}
