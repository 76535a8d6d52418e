// Package storage persists per-user sessions and an append-only audit trail.
//
// Drivers:
//   - "file": JSON snapshot (sessions.json) rewritten atomically + audit.jsonl
//   - "sqlite": a single SQLite database (pure Go, modernc.org/sqlite)
//
// Session writes are merges, never full overwrites: keys present only on
// disk survive unless they are listed as explicit deletes.
package storage
