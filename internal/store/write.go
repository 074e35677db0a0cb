package store

import (
	"context"
	"encoding/json"
	"fmt"
)

// WriteRun appends a callback run. A second run with the same seq is
// ignored.
func (s *Store) WriteRun(ctx context.Context, r Run) error {
	triggers := r.Triggers
	if triggers == nil {
		triggers = []string{}
	}
	triggersJSON, err := json.Marshal(triggers)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO callback_runs
		(seq, group_id, resolved_id, outcome, priority, triggers, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		r.Seq,
		r.GroupID,
		r.ResolvedID,
		string(r.Outcome),
		r.Priority,
		string(triggersJSON),
		r.Error,
	)
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	return nil
}

// WriteUpdate appends a prop update and reports whether a row was inserted.
// Writing the same update twice inserts it once.
func (s *Store) WriteUpdate(ctx context.Context, u Update) (bool, error) {
	propsJSON, err := MarshalCanonical(u.Props)
	if err != nil {
		return false, fmt.Errorf("write update: props: %w", err)
	}
	hash, err := UpdateHash(u)
	if err != nil {
		return false, fmt.Errorf("write update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO prop_updates
		(seq, group_id, source, item_id, item_path, props, props_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(props_hash) DO NOTHING
	`,
		u.Seq,
		u.GroupID,
		u.Source,
		u.ItemID,
		u.ItemPath.String(),
		string(propsJSON),
		hash,
	)
	if err != nil {
		return false, fmt.Errorf("write update: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write update: %w", err)
	}
	return n > 0, nil
}

// UpdateHash is the content hash of an update: seq, group, source, target
// and props, in canonical JSON.
func UpdateHash(u Update) (string, error) {
	path := make([]any, len(u.ItemPath))
	copy(path, u.ItemPath)
	canonical, err := MarshalCanonical(map[string]any{
		"seq":       u.Seq,
		"group_id":  u.GroupID,
		"source":    u.Source,
		"item_id":   u.ItemID,
		"item_path": path,
		"props":     normalizeProps(u.Props),
	})
	if err != nil {
		return "", fmt.Errorf("update hash: %w", err)
	}
	return hashWithDomain(DomainPropUpdate, canonical), nil
}

func normalizeProps(props map[string]any) any {
	if props == nil {
		return map[string]any{}
	}
	return props
}
