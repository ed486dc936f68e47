// Package run persists experiment runs and their measurement data in SQLite.
//
// A run moves through the lifecycle pending, stabilizing, stabilized,
// acquiring, acquired, analyzing, analyzed, reporting, completed, with failed
// as the terminal error state and a needs_review flag for results an operator
// must inspect. Samples are append-only and keyed by (run_id, seq);
// sweep_points aggregates the samples taken at each load resistance.
//
// The Store wraps all database access with context-aware methods, applies
// migrations on open, and exposes the maintenance operations the workflow
// manager and CLI need (stale-heartbeat reclamation, stuck-processing reset,
// retry, clear, health summaries).
package run
