// Package ir provides the shared data model for the action bus.
//
// This package contains plain value types only: result statuses, stored
// results, log snapshots, trace entries and the declarative workflow
// model produced by the compiler. All other internal packages import ir;
// ir imports nothing internal.
//
// Key design constraints:
//   - NO float types in canonical output - digests must be deterministic
//   - All JSON tags use snake_case
//   - Trace entries carry logical sequence numbers, never wall-clock time
package ir
