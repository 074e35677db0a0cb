package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/roach88/reflow/internal/ident"
	"github.com/roach88/reflow/internal/layout"
	"github.com/roach88/reflow/internal/resolve"
	"github.com/roach88/reflow/internal/store"
)

// complete applies the result of an execution unless a newer request
// superseded it.
func (s *Scheduler) complete(ctx context.Context, c *completion) error {
	ex, ok := s.executing[c.cb.ResolvedID]
	if !ok || ex.token != c.token {
		slog.Debug("ignoring superseded result", "resolved_id", c.cb.ResolvedID, "token", c.token)
		return nil
	}
	delete(s.executing, c.cb.ResolvedID)
	cb := ex.cb

	res := c.result
	if res.Err != nil {
		s.reporter.Report(KindBackEnd, cb, res.Err)
		s.record(ctx, cb, store.OutcomeError, res.Err)
		return nil
	}
	if len(res.Data) == 0 {
		slog.Debug("callback prevented update", "resolved_id", cb.ResolvedID)
		s.record(ctx, cb, store.OutcomePrevented, nil)
		return nil
	}

	keys := make([]string, 0, len(res.Data))
	for k := range res.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	applied := 0
	for _, key := range keys {
		id, err := ident.Parse(key)
		if err != nil {
			s.reporter.Report(KindCallback, cb, fmt.Errorf("result for unusable id %q: %w", key, err))
			continue
		}
		_, ok, err := s.apply(ctx, id, res.Data[key], cb.ResolvedID, cb.ExecutionGroup)
		if err != nil {
			s.reporter.Report(KindCallback, cb, err)
			continue
		}
		if ok {
			applied++
		}
	}

	if applied == 0 {
		slog.Debug("callback targets left the layout", "resolved_id", cb.ResolvedID)
		s.record(ctx, cb, store.OutcomeStored, nil)
		return nil
	}
	slog.Debug("callback completed", "resolved_id", cb.ResolvedID, "components", applied)
	s.record(ctx, cb, store.OutcomeCompleted, nil)
	return nil
}

// apply writes props onto the component id and requests everything the
// write affects, in group. It returns the previous values of the written
// props, and false if id is not in the layout.
func (s *Scheduler) apply(ctx context.Context, id ident.ID, props map[string]any, source, group string) (map[string]any, bool, error) {
	path, ok := s.index.Lookup(id)
	if !ok {
		return nil, false, nil
	}

	props, _ = layout.CloneValue(props).(map[string]any)
	prev, err := s.tree.SetProps(path, props)
	if err != nil {
		return nil, false, fmt.Errorf("apply props to %s: %w", id, err)
	}
	s.publish(ctx, id, path, props, source, group)

	if children, ok := props["children"]; ok {
		s.replaceChildren(ctx, path, children, prev["children"], group)
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.request(ctx, resolve.ByInput(s.graph, s.index, id, name, resolve.Direct), group)
	}
	return prev, true, nil
}

// replaceChildren reindexes the new subtree and requests the callbacks of
// the inserted chunk, plus those whose multi-valued inputs lost a member.
func (s *Scheduler) replaceChildren(ctx context.Context, path layout.Path, children, oldChildren any, group string) {
	chunkPath := path.Append("props", "children")
	oldIndex := s.index
	s.index = layout.Compute(children, chunkPath, oldIndex)

	added := resolve.LayoutCallbacks(s.graph, s.index, children, resolve.LayoutOptions{ChunkPath: chunkPath})
	s.request(ctx, added, group)

	withFollowers := resolve.LayoutCallbacks(s.graph, s.index, children, resolve.LayoutOptions{
		ChunkPath:     chunkPath,
		FollowForward: true,
	})
	s.follow(withFollowers, group)

	if oldChildren != nil {
		removed := resolve.LayoutCallbacks(s.graph, oldIndex, oldChildren, resolve.LayoutOptions{
			RemovedArrayInputsOnly: true,
			NewPaths:               s.index,
			ChunkPath:              chunkPath,
		})
		s.request(ctx, removed, group)
	}
	slog.Debug("children replaced", "path", chunkPath.String(), "added", len(added), "components", s.index.Len())
}

// publish hands the update to the renderer and the journal.
func (s *Scheduler) publish(ctx context.Context, id ident.ID, path layout.Path, props map[string]any, source, group string) {
	if s.renderer != nil {
		u := UpdateProps{ItemPath: path, ID: id, Props: props, Source: source}
		if err := s.renderer.UpdateProps(ctx, u); err != nil {
			slog.Warn("renderer update failed", "id", id.String(), "error", err)
		}
	}
	if s.journal == nil {
		return
	}
	u := store.Update{
		Seq:      s.clock.Next(),
		GroupID:  group,
		Source:   source,
		ItemID:   id.String(),
		ItemPath: path,
		Props:    props,
	}
	if _, err := s.journal.WriteUpdate(ctx, u); err != nil {
		slog.Warn("journal write failed", "id", id.String(), "source", source, "error", err)
	}
}

// setProps applies a user edit and records it for undo.
func (s *Scheduler) setProps(ctx context.Context, id ident.ID, props map[string]any) error {
	group := s.groups.Generate()
	prev, ok, err := s.apply(ctx, id, props, store.SourceUser, group)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no component with id %s in the layout", id)
	}
	s.history.Push(HistoryEntry{
		ID:     id,
		Before: prev,
		After:  layout.CloneValue(props).(map[string]any),
	})
	slog.Debug("props set", "id", id.String(), "group", group)
	return nil
}

// moveHistory restores a snapshot. Observers are notified as for a user
// edit; the move itself is not recorded.
func (s *Scheduler) moveHistory(ctx context.Context, m HistoryMove) error {
	var (
		entry HistoryEntry
		ok    bool
		props map[string]any
	)
	switch m {
	case Undo:
		entry, ok = s.history.Undo()
		props = entry.Before
	case Redo:
		entry, ok = s.history.Redo()
		props = entry.After
	case Revert:
		entry, ok = s.history.Revert()
		props = entry.Before
	default:
		return fmt.Errorf("unknown history move %s", m)
	}
	if !ok {
		slog.Debug("nothing to move in history", "move", m.String())
		return nil
	}

	_, applied, err := s.apply(ctx, entry.ID, props, store.SourceHistory, s.groups.Generate())
	if err != nil {
		return err
	}
	if !applied {
		return fmt.Errorf("%s: component %s is no longer in the layout", m, entry.ID)
	}
	return nil
}

// hydrate requests the initial call of every callback whose outputs are in
// the layout. A circular graph is reported once and nothing is requested.
func (s *Scheduler) hydrate(ctx context.Context) error {
	if s.hydrated {
		slog.Debug("already hydrated")
		return nil
	}
	s.hydrated = true

	if _, err := s.graph.OverallOrder(); err != nil {
		s.reporter.Report(KindCallback, nil, err)
		return nil
	}

	cbs := resolve.LayoutCallbacks(s.graph, s.index, s.tree.Root(), resolve.LayoutOptions{OutputsOnly: true})
	s.request(ctx, cbs, s.groups.Generate())
	slog.Info("hydrating layout", "initial_callbacks", len(cbs))
	return nil
}
