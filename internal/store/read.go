package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Runs returns the callback runs of groupID, or of every group when groupID
// is empty, ordered by seq.
func (s *Store) Runs(ctx context.Context, groupID string) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, group_id, resolved_id, outcome, priority, triggers, error
		FROM callback_runs
		WHERE ? = '' OR group_id = ?
		ORDER BY seq ASC
	`, groupID, groupID)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		r        Run
		outcome  string
		triggers string
	)
	if err := rows.Scan(&r.Seq, &r.GroupID, &r.ResolvedID, &outcome, &r.Priority, &triggers, &r.Error); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	r.Outcome = Outcome(outcome)
	if err := json.Unmarshal([]byte(triggers), &r.Triggers); err != nil {
		return Run{}, fmt.Errorf("decode triggers of run %d: %w", r.Seq, err)
	}
	return r, nil
}

// Updates returns the prop updates of groupID, or of every group when
// groupID is empty, ordered by seq.
func (s *Store) Updates(ctx context.Context, groupID string) ([]Update, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, group_id, source, item_id, item_path, props, props_hash
		FROM prop_updates
		WHERE ? = '' OR group_id = ?
		ORDER BY seq ASC, props_hash COLLATE BINARY ASC
	`, groupID, groupID)
	if err != nil {
		return nil, fmt.Errorf("query updates: %w", err)
	}
	defer rows.Close()

	updates := []Update{}
	for rows.Next() {
		var (
			u     Update
			path  string
			props string
		)
		if err := rows.Scan(&u.Seq, &u.GroupID, &u.Source, &u.ItemID, &path, &props, &u.PropsHash); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		if err := json.Unmarshal([]byte(path), &u.ItemPath); err != nil {
			return nil, fmt.Errorf("decode path of update %d: %w", u.Seq, err)
		}
		if err := json.Unmarshal([]byte(props), &u.Props); err != nil {
			return nil, fmt.Errorf("decode props of update %d: %w", u.Seq, err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// Groups lists execution groups in the order they first appear.
func (s *Store) Groups(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_id FROM (
			SELECT group_id, seq FROM callback_runs
			UNION ALL
			SELECT group_id, seq FROM prop_updates
		)
		GROUP BY group_id
		ORDER BY MIN(seq) ASC, group_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query groups: %w", err)
	}
	defer rows.Close()

	groups := []string{}
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, fmt.Errorf("scan group: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate groups: %w", err)
	}
	return groups, nil
}
