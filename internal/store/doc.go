// Package store provides SQLite-backed storage for run logs.
//
// A run log holds:
//   - Runs: one row per engine run, keyed by run id
//   - Steps: the input frame of every committed step
//   - Results: the query rows each step produced
//
// A step and its results are written in one transaction, so a reader never
// sees a step without its rows. Frames are kept so a run can be replayed
// through a fresh engine and its results compared row for row.
//
// # Ordering
//
// All reads order by seq, the engine's logical clock, then by query and
// entity id with COLLATE BINARY. Wall-clock time is never stored.
//
// # Encoding
//
// Frames and row values are stored as canonical JSON: object keys sorted
// by UTF-16 code units, strings NFC normalized, no HTML escaping. Equal
// values always encode to equal bytes, which is what replay comparison
// and row_hash rely on.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
