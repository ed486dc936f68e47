package run

import (
	"context"
	"database/sql"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        label TEXT,
        fingerprint TEXT NOT NULL UNIQUE,
        status TEXT NOT NULL,
        params_json TEXT,
        results_json TEXT,
        report_path TEXT,
        error_message TEXT,
        created_at TEXT NOT NULL,
        updated_at TEXT NOT NULL,
        progress_stage TEXT,
        progress_percent REAL NOT NULL DEFAULT 0,
        progress_message TEXT,
        last_heartbeat TEXT,
        needs_review INTEGER NOT NULL DEFAULT 0,
        review_reason TEXT
    )`,
	`CREATE TABLE IF NOT EXISTS samples (
        run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        seq INTEGER NOT NULL,
        elapsed_seconds REAL NOT NULL,
        t_hot_c REAL NOT NULL,
        t_cold_c REAL NOT NULL,
        t_ambient_c REAL NOT NULL,
        emf_volts REAL NOT NULL,
        current_amps REAL NOT NULL,
        load_ohms REAL NOT NULL,
        heater_watts REAL NOT NULL,
        phase TEXT NOT NULL,
        PRIMARY KEY (run_id, seq)
    )`,
	`CREATE TABLE IF NOT EXISTS sweep_points (
        run_id INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
        load_ohms REAL NOT NULL,
        mean_emf_volts REAL NOT NULL,
        mean_amps REAL NOT NULL,
        mean_watts REAL NOT NULL,
        mean_t_hot_c REAL NOT NULL,
        mean_t_cold_c REAL NOT NULL,
        mean_heater_watts REAL NOT NULL,
        sample_count INTEGER NOT NULL,
        PRIMARY KEY (run_id, load_ohms)
    )`,
	`CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status)`,
	`CREATE INDEX IF NOT EXISTS idx_samples_phase ON samples(run_id, phase)`,
	`CREATE TABLE IF NOT EXISTS schema_meta (
        key TEXT PRIMARY KEY,
        value TEXT NOT NULL
    )`,
	`INSERT INTO schema_meta (key, value) VALUES ('version', '1')
        ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
}

func (s *Store) applyMigrations(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, stmt := range migrations {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migrations: %w", err)
	}
	return nil
}

func (s *Store) schemaVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM schema_meta WHERE key = 'version'`).Scan(&version)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}
