package run

import (
	"context"
	"fmt"
	"os"
	"time"
)

// ResetStuckProcessing rolls runs stuck in processing states back to the
// status their stage started from.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	var total int64
	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, transition := range stageRollbackTransitions {
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE runs
             SET status = ?, progress_stage = 'Reset from stuck processing',
                 progress_percent = 0, progress_message = NULL,
                 last_heartbeat = NULL, updated_at = ?
             WHERE status = ?`,
			transition.to,
			now,
			transition.from,
		)
		if err != nil {
			return total, fmt.Errorf("reset stuck %s: %w", transition.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// ReclaimStaleProcessing rolls back in-flight runs whose heartbeat predates
// the cutoff. Runs with no heartbeat at all are also reclaimed.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time, statuses ...Status) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	var total int64
	now := time.Now().UTC().Format(time.RFC3339Nano)
	cutoffValue := cutoff.UTC().Format(time.RFC3339Nano)
	for _, transition := range stageRollbackTransitions {
		eligible := false
		for _, status := range statuses {
			if status == transition.from {
				eligible = true
				break
			}
		}
		if !eligible {
			continue
		}
		res, err := s.db.ExecContext(
			ctx,
			`UPDATE runs
             SET status = ?, progress_stage = 'Reclaimed after stale heartbeat',
                 progress_percent = 0, progress_message = NULL,
                 last_heartbeat = NULL, updated_at = ?
             WHERE status = ? AND (last_heartbeat IS NULL OR last_heartbeat < ?)`,
			transition.to,
			now,
			transition.from,
			cutoffValue,
		)
		if err != nil {
			return total, fmt.Errorf("reclaim stale %s: %w", transition.from, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return total, fmt.Errorf("rows affected: %w", err)
		}
		total += affected
	}
	return total, nil
}

// RetryFailed resets failed runs (optionally a subset) back to pending.
// Existing samples and results are removed so the retry starts clean.
func (s *Store) RetryFailed(ctx context.Context, ids ...int64) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	query := `UPDATE runs
        SET status = ?, error_message = NULL, results_json = NULL, report_path = NULL,
            progress_stage = NULL, progress_percent = 0, progress_message = NULL,
            last_heartbeat = NULL, needs_review = 0, review_reason = NULL, updated_at = ?
        WHERE status = ?`
	args := []any{StatusPending, now, StatusFailed}
	if len(ids) > 0 {
		query += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("retry failed runs: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		if err := s.purgeDataForStatuses(ctx, StatusPending, ids); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

func (s *Store) purgeDataForStatuses(ctx context.Context, status Status, ids []int64) error {
	for _, table := range []string{"samples", "sweep_points"} {
		query := `DELETE FROM ` + table + ` WHERE run_id IN (SELECT id FROM runs WHERE status = ?)`
		args := []any{status}
		if len(ids) > 0 {
			query = `DELETE FROM ` + table + ` WHERE run_id IN (` + makePlaceholders(len(ids)) + `)`
			args = args[:0]
			for _, id := range ids {
				args = append(args, id)
			}
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("purge %s: %w", table, err)
		}
	}
	return nil
}

// Clear removes all runs along with their samples and sweep points.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs`)
	if err != nil {
		return 0, fmt.Errorf("clear runs: %w", err)
	}
	return res.RowsAffected()
}

// ClearCompleted removes only completed runs.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE status = ?`, StatusCompleted)
	if err != nil {
		return 0, fmt.Errorf("clear completed runs: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed removes only failed runs.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE status = ?`, StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed runs: %w", err)
	}
	return res.RowsAffected()
}

// FailProcessing marks all in-flight runs failed with the provided message.
// Used during daemon shutdown so no run is left claiming to be in progress.
func (s *Store) FailProcessing(ctx context.Context, message string) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	placeholders := make([]any, 0, len(processingStatuses)+2)
	placeholders = append(placeholders, StatusFailed, message, now)
	var clause string
	for status := range processingStatuses {
		if clause != "" {
			clause += ", "
		}
		clause += "?"
		placeholders = append(placeholders, status)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE runs
         SET status = ?, error_message = ?, progress_percent = 0,
             last_heartbeat = NULL, updated_at = ?
         WHERE status IN (`+clause+`)`,
		placeholders...,
	)
	if err != nil {
		return 0, fmt.Errorf("fail processing runs: %w", err)
	}
	return res.RowsAffected()
}

// Stats returns the number of runs in each status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("query run stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run stats: %w", err)
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

// Health returns aggregate run counts.
func (s *Store) Health(ctx context.Context) (HealthSummary, error) {
	summary := HealthSummary{}
	rows, err := s.db.QueryContext(ctx, `SELECT status, needs_review, COUNT(*) FROM runs GROUP BY status, needs_review`)
	if err != nil {
		return summary, fmt.Errorf("query run health: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status      Status
			needsReview int64
			count       int
		)
		if err := rows.Scan(&status, &needsReview, &count); err != nil {
			return summary, fmt.Errorf("scan run health: %w", err)
		}
		summary.Total += count
		if needsReview != 0 {
			summary.Review += count
		}
		switch {
		case status == StatusPending:
			summary.Pending += count
		case status == StatusFailed:
			summary.Failed += count
		case status == StatusCompleted:
			summary.Completed += count
		case IsProcessingStatus(status):
			summary.Processing += count
		}
	}
	return summary, rows.Err()
}

// CheckHealth returns detailed database diagnostics.
func (s *Store) CheckHealth(ctx context.Context) (DatabaseHealth, error) {
	health := DatabaseHealth{DBPath: s.path}

	if _, err := os.Stat(s.path); err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.DatabaseExists = true

	if err := s.db.PingContext(ctx); err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.DatabaseReadable = true

	version, err := s.schemaVersion(ctx)
	if err != nil {
		health.Error = err.Error()
		return health, nil
	}
	health.SchemaVersion = version

	var tableName string
	err = s.db.QueryRowContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name = 'runs'`).Scan(&tableName)
	health.TableExists = err == nil && tableName == "runs"

	var integrity string
	if err := s.db.QueryRowContext(ctx, `PRAGMA integrity_check`).Scan(&integrity); err == nil {
		health.IntegrityCheck = integrity == "ok"
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&health.TotalRuns); err != nil {
		health.Error = err.Error()
	}

	return health, nil
}
