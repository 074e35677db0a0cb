package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/reflow/internal/layout"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesDatabaseWithPragmas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(path)
	require.NoError(t, err)
	mode, err := s.pragma("journal_mode")
	require.NoError(t, err)
	assert.Equal(t, "wal", mode)
	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	for i := 0; i < 3; i++ {
		s, err := Open(path)
		require.NoError(t, err, "open %d", i)
		require.NoError(t, s.Close())
	}

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	for _, table := range []string{"callback_runs", "prop_updates"} {
		var name string
		err := s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		assert.NoError(t, err, table)
	}
}

func TestOpen_MigratesOldJournal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	s, err := Open(path)
	require.NoError(t, err)
	_, err = s.db.Exec("DROP INDEX idx_prop_updates_group")
	require.NoError(t, err)
	_, err = s.db.Exec("PRAGMA user_version = 0")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	var name string
	err = s.db.QueryRow("SELECT name FROM sqlite_master WHERE type='index' AND name='idx_prop_updates_group'").Scan(&name)
	assert.NoError(t, err)
	version, err := s.pragma("user_version")
	require.NoError(t, err)
	assert.Equal(t, "1", version)
}

func TestRuns_RoundTripOrderedBySeq(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteRun(ctx, Run{Seq: 3, GroupID: "g1", ResolvedID: "b.value", Outcome: OutcomeError, Error: "boom"}))
	require.NoError(t, s.WriteRun(ctx, Run{Seq: 1, GroupID: "g1", ResolvedID: "a.value", Outcome: OutcomeCompleted, Priority: "11", Triggers: []string{"in.value"}}))
	require.NoError(t, s.WriteRun(ctx, Run{Seq: 2, GroupID: "g2", ResolvedID: "c.value", Outcome: OutcomePrevented}))
	// Same seq again is ignored.
	require.NoError(t, s.WriteRun(ctx, Run{Seq: 1, GroupID: "g1", ResolvedID: "other", Outcome: OutcomeNull}))

	runs, err := s.Runs(ctx, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, Run{Seq: 1, GroupID: "g1", ResolvedID: "a.value", Outcome: OutcomeCompleted, Priority: "11", Triggers: []string{"in.value"}}, runs[0])
	assert.Equal(t, []string{}, runs[1].Triggers)
	assert.Equal(t, "boom", runs[2].Error)

	g1, err := s.Runs(ctx, "g1")
	require.NoError(t, err)
	assert.Len(t, g1, 2)
}

func TestUpdates_IdempotentByHash(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	u := Update{
		Seq:      4,
		GroupID:  "g1",
		Source:   SourceUser,
		ItemID:   "in",
		ItemPath: layout.Path{0, "props", "children", 1},
		Props:    map[string]any{"value": 3.5, "label": "<b>"},
	}
	inserted, err := s.WriteUpdate(ctx, u)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.WriteUpdate(ctx, u)
	require.NoError(t, err)
	assert.False(t, inserted)

	updates, err := s.Updates(ctx, "")
	require.NoError(t, err)
	require.Len(t, updates, 1)
	got := updates[0]
	assert.Equal(t, layout.Path{0, "props", "children", 1}, got.ItemPath)
	assert.Equal(t, map[string]any{"value": 3.5, "label": "<b>"}, got.Props)
	assert.Len(t, got.PropsHash, 64)

	var raw string
	require.NoError(t, s.db.QueryRow("SELECT props FROM prop_updates").Scan(&raw))
	assert.Equal(t, `{"label":"<b>","value":3.5}`, raw)
}

func TestGroups_InFirstSeqOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	_, err := s.WriteUpdate(ctx, Update{Seq: 5, GroupID: "late", Source: SourceUser, ItemID: "x"})
	require.NoError(t, err)
	require.NoError(t, s.WriteRun(ctx, Run{Seq: 2, GroupID: "early", ResolvedID: "a.b", Outcome: OutcomeCompleted}))
	require.NoError(t, s.WriteRun(ctx, Run{Seq: 6, GroupID: "early", ResolvedID: "a.b", Outcome: OutcomeCompleted}))

	groups, err := s.Groups(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"early", "late"}, groups)

	last, err := s.LastSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(6), last)
}

func TestLastSeq_Empty(t *testing.T) {
	s := createTestStore(t)
	last, err := s.LastSeq(context.Background())
	require.NoError(t, err)
	assert.Zero(t, last)
}
