package run

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// AppendSamples stores a batch of samples for a run, assigning sequence
// numbers after the highest already stored. Samples are append-only.
func (s *Store) AppendSamples(ctx context.Context, runID int64, samples []Sample) error {
	if len(samples) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sample tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var next int64
	err = tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) + 1 FROM samples WHERE run_id = ?`, runID).Scan(&next)
	if err != nil {
		return fmt.Errorf("next sample seq: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO samples (
            run_id, seq, elapsed_seconds, t_hot_c, t_cold_c, t_ambient_c,
            emf_volts, current_amps, load_ohms, heater_watts, phase
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare sample insert: %w", err)
	}
	defer stmt.Close()

	for i := range samples {
		sample := &samples[i]
		sample.RunID = runID
		sample.Seq = next
		next++
		if _, err := stmt.ExecContext(
			ctx,
			sample.RunID,
			sample.Seq,
			sample.ElapsedSeconds,
			sample.THotC,
			sample.TColdC,
			sample.TAmbientC,
			sample.EMFVolts,
			sample.CurrentAmps,
			sample.LoadOhms,
			sample.HeaterWatts,
			string(sample.Phase),
		); err != nil {
			return fmt.Errorf("insert sample: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit samples: %w", err)
	}
	return nil
}

// SamplesForRun returns a run's samples ordered by sequence. When phase is
// non-empty only samples from that phase are returned.
func (s *Store) SamplesForRun(ctx context.Context, runID int64, phase Phase) ([]Sample, error) {
	query := `SELECT run_id, seq, elapsed_seconds, t_hot_c, t_cold_c, t_ambient_c,
        emf_volts, current_amps, load_ohms, heater_watts, phase
        FROM samples WHERE run_id = ?`
	args := []any{runID}
	if phase != "" {
		query += ` AND phase = ?`
		args = append(args, string(phase))
	}
	query += ` ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query samples: %w", err)
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var sample Sample
		var phaseValue string
		if err := rows.Scan(
			&sample.RunID,
			&sample.Seq,
			&sample.ElapsedSeconds,
			&sample.THotC,
			&sample.TColdC,
			&sample.TAmbientC,
			&sample.EMFVolts,
			&sample.CurrentAmps,
			&sample.LoadOhms,
			&sample.HeaterWatts,
			&phaseValue,
		); err != nil {
			return nil, fmt.Errorf("scan sample: %w", err)
		}
		sample.Phase = Phase(phaseValue)
		samples = append(samples, sample)
	}
	return samples, rows.Err()
}

// SampleCount returns the number of samples stored for a run.
func (s *Store) SampleCount(ctx context.Context, runID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM samples WHERE run_id = ?`, runID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count samples: %w", err)
	}
	return count, nil
}

// UpsertSweepPoint stores the aggregate for one load resistance, replacing
// any previous aggregate for the same load.
func (s *Store) UpsertSweepPoint(ctx context.Context, point SweepPoint) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO sweep_points (
            run_id, load_ohms, mean_emf_volts, mean_amps, mean_watts,
            mean_t_hot_c, mean_t_cold_c, mean_heater_watts, sample_count
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(run_id, load_ohms) DO UPDATE SET
            mean_emf_volts = excluded.mean_emf_volts,
            mean_amps = excluded.mean_amps,
            mean_watts = excluded.mean_watts,
            mean_t_hot_c = excluded.mean_t_hot_c,
            mean_t_cold_c = excluded.mean_t_cold_c,
            mean_heater_watts = excluded.mean_heater_watts,
            sample_count = excluded.sample_count`,
		point.RunID,
		point.LoadOhms,
		point.MeanEMFVolts,
		point.MeanAmps,
		point.MeanWatts,
		point.MeanTHotC,
		point.MeanTColdC,
		point.MeanHeaterW,
		point.SampleCount,
	)
	if err != nil {
		return fmt.Errorf("upsert sweep point: %w", err)
	}
	return nil
}

// SweepPointsForRun returns a run's sweep aggregates ordered by load resistance.
func (s *Store) SweepPointsForRun(ctx context.Context, runID int64) ([]SweepPoint, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT run_id, load_ohms, mean_emf_volts, mean_amps, mean_watts,
            mean_t_hot_c, mean_t_cold_c, mean_heater_watts, sample_count
         FROM sweep_points WHERE run_id = ? ORDER BY load_ohms`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query sweep points: %w", err)
	}
	defer rows.Close()

	var points []SweepPoint
	for rows.Next() {
		var point SweepPoint
		if err := rows.Scan(
			&point.RunID,
			&point.LoadOhms,
			&point.MeanEMFVolts,
			&point.MeanAmps,
			&point.MeanWatts,
			&point.MeanTHotC,
			&point.MeanTColdC,
			&point.MeanHeaterW,
			&point.SampleCount,
		); err != nil {
			return nil, fmt.Errorf("scan sweep point: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// LatestSample returns the most recent sample for a run, or nil when none exist.
func (s *Store) LatestSample(ctx context.Context, runID int64) (*Sample, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, seq, elapsed_seconds, t_hot_c, t_cold_c, t_ambient_c,
            emf_volts, current_amps, load_ohms, heater_watts, phase
         FROM samples WHERE run_id = ? ORDER BY seq DESC LIMIT 1`,
		runID,
	)
	var sample Sample
	var phaseValue string
	err := row.Scan(
		&sample.RunID,
		&sample.Seq,
		&sample.ElapsedSeconds,
		&sample.THotC,
		&sample.TColdC,
		&sample.TAmbientC,
		&sample.EMFVolts,
		&sample.CurrentAmps,
		&sample.LoadOhms,
		&sample.HeaterWatts,
		&phaseValue,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest sample: %w", err)
	}
	sample.Phase = Phase(phaseValue)
	return &sample, nil
}
