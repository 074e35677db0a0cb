// Package store is the SQLite journal of a scheduler run.
//
// The journal is append-only:
//   - callback_runs: one row per callback instance that left the scheduler,
//     with its outcome (completed, prevented, null, stored, error,
//     superseded, pruned)
//   - prop_updates: one row per prop update applied to the layout, from a
//     user edit, a history move or a callback
//
// Every row carries seq, a value of the scheduler's logical clock. Reads are
// ordered by seq and never by wall time, so two runs of the same app produce
// the same journal.
//
// Props are stored as canonical JSON (sorted keys, NFC strings, no HTML
// escaping). prop_updates.props_hash is a SHA-256 over the canonical row and
// is unique, so writing the same update twice is a no-op.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000
package store
