// Package store provides SQLite-backed durable storage for bus runs.
//
// Each finished run is written once with:
//   - Runs: identity, workflow name, terminal status, error and log digest
//   - Log entries: the five execution logs, entry by entry
//   - Trace entries: the logical-clock trace of the run
//   - Rollbacks: actions rolled back after a failure, newest first
//
// # Critical Patterns
//
// Logical Identity and Time
//   - Runs are ordered by started_seq, a store-assigned counter, NEVER
//     by timestamps
//   - Trace entries carry the bus clock's seq
//
// Deterministic Query Results
//   - Every multi-row query has an ORDER BY over seq columns
//
// Write Once
//   - WriteRun ignores a run id that is already stored
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Digests are computed by ir.LogDigest over canonical JSON.
package store
