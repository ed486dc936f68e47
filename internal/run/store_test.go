package run_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"seebeck/internal/run"
	"seebeck/internal/testsupport"
)

func TestOpenAppliesMigrations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	r := testsupport.MustNewRun(t, store, cfg, "Baseline sweep", "fp-1")
	if r.ID == 0 {
		t.Fatal("expected run ID to be assigned")
	}
	if r.Status != run.StatusPending {
		t.Fatalf("expected pending status, got %s", r.Status)
	}

	fetched, err := store.GetByID(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if fetched == nil || fetched.Label != "Baseline sweep" {
		t.Fatalf("unexpected fetched run: %#v", fetched)
	}

	found, err := store.FindByFingerprint(ctx, "fp-1")
	if err != nil {
		t.Fatalf("FindByFingerprint failed: %v", err)
	}
	if found == nil || found.ID != r.ID {
		t.Fatalf("expected to find inserted run, got %#v", found)
	}
}

func TestNewRunRequiresFingerprint(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if _, err := store.NewRun(context.Background(), "No Fingerprint", "", run.ParamsFromConfig(cfg)); err == nil {
		t.Fatal("expected error when fingerprint missing")
	}
}

func TestParamsRoundTrip(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	r := testsupport.MustNewRun(t, store, cfg, "", "fp-params")
	params, err := run.DecodeParams(r.ParamsJSON)
	if err != nil {
		t.Fatalf("DecodeParams: %v", err)
	}
	if params.HotSetpointC != cfg.Control.HotSetpointC {
		t.Fatalf("expected hot setpoint %v, got %v", cfg.Control.HotSetpointC, params.HotSetpointC)
	}
	if len(params.LoadOhms) != len(cfg.Sweep.LoadOhms) {
		t.Fatalf("expected %d loads, got %d", len(cfg.Sweep.LoadOhms), len(params.LoadOhms))
	}
}

func TestResetStuckProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	ctx := context.Background()
	cases := []struct {
		name          string
		initialStatus run.Status
		expected      run.Status
	}{
		{"stabilizing", run.StatusStabilizing, run.StatusPending},
		{"acquiring", run.StatusAcquiring, run.StatusStabilized},
		{"analyzing", run.StatusAnalyzing, run.StatusAcquired},
		{"reporting", run.StatusReporting, run.StatusAnalyzed},
	}
	var ids []int64
	for i, tc := range cases {
		r := testsupport.MustNewRun(t, store, cfg, tc.name, fmt.Sprintf("fp-reset-%d", i))
		r.Status = tc.initialStatus
		if err := store.Update(ctx, r); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		ids = append(ids, r.ID)
	}

	count, err := store.ResetStuckProcessing(ctx)
	if err != nil {
		t.Fatalf("ResetStuckProcessing failed: %v", err)
	}
	if count != int64(len(cases)) {
		t.Fatalf("expected %d resets, got %d", len(cases), count)
	}

	for i, tc := range cases {
		r, err := store.GetByID(ctx, ids[i])
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if r.Status != tc.expected {
			t.Fatalf("%s: expected status %s, got %s", tc.name, tc.expected, r.Status)
		}
	}
}

func TestReclaimStaleProcessing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	stale := testsupport.MustNewRun(t, store, cfg, "stale", "fp-stale")
	stale.Status = run.StatusAcquiring
	old := time.Now().Add(-time.Hour)
	stale.LastHeartbeat = &old
	if err := store.Update(ctx, stale); err != nil {
		t.Fatalf("Update: %v", err)
	}

	fresh := testsupport.MustNewRun(t, store, cfg, "fresh", "fp-fresh")
	fresh.Status = run.StatusAcquiring
	now := time.Now()
	fresh.LastHeartbeat = &now
	if err := store.Update(ctx, fresh); err != nil {
		t.Fatalf("Update: %v", err)
	}

	count, err := store.ReclaimStaleProcessing(ctx, time.Now().Add(-time.Minute), run.StatusAcquiring)
	if err != nil {
		t.Fatalf("ReclaimStaleProcessing: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 reclaimed run, got %d", count)
	}

	reclaimed, _ := store.GetByID(ctx, stale.ID)
	if reclaimed.Status != run.StatusStabilized {
		t.Fatalf("expected stale run rolled back to stabilized, got %s", reclaimed.Status)
	}
	untouched, _ := store.GetByID(ctx, fresh.ID)
	if untouched.Status != run.StatusAcquiring {
		t.Fatalf("expected fresh run untouched, got %s", untouched.Status)
	}
}

func TestNextForStatusesReturnsOldest(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	first := testsupport.MustNewRun(t, store, cfg, "first", "fp-next-1")
	testsupport.MustNewRun(t, store, cfg, "second", "fp-next-2")

	next, err := store.NextForStatuses(ctx, run.StatusPending)
	if err != nil {
		t.Fatalf("NextForStatuses: %v", err)
	}
	if next == nil || next.ID != first.ID {
		t.Fatalf("expected oldest pending run %d, got %#v", first.ID, next)
	}

	none, err := store.NextForStatuses(ctx, run.StatusAnalyzing)
	if err != nil {
		t.Fatalf("NextForStatuses: %v", err)
	}
	if none != nil {
		t.Fatalf("expected no analyzing run, got %#v", none)
	}
}

func TestSamplesAppendOnlyOrdering(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.MustNewRun(t, store, cfg, "sampling", "fp-samples")

	batch1 := []run.Sample{
		{ElapsedSeconds: 0.0, THotC: 40, TColdC: 25, TAmbientC: 25, EMFVolts: 0.7, Phase: run.PhaseStabilize},
		{ElapsedSeconds: 0.25, THotC: 41, TColdC: 25, TAmbientC: 25, EMFVolts: 0.8, Phase: run.PhaseStabilize},
	}
	if err := store.AppendSamples(ctx, r.ID, batch1); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}
	batch2 := []run.Sample{
		{ElapsedSeconds: 0.5, THotC: 42, TColdC: 25, TAmbientC: 25, EMFVolts: 0.9, LoadOhms: 2.4, Phase: run.PhaseSweep},
	}
	if err := store.AppendSamples(ctx, r.ID, batch2); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	all, err := store.SamplesForRun(ctx, r.ID, "")
	if err != nil {
		t.Fatalf("SamplesForRun: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(all))
	}
	for i, sample := range all {
		if sample.Seq != int64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, sample.Seq)
		}
	}

	sweepOnly, err := store.SamplesForRun(ctx, r.ID, run.PhaseSweep)
	if err != nil {
		t.Fatalf("SamplesForRun(phase): %v", err)
	}
	if len(sweepOnly) != 1 || sweepOnly[0].LoadOhms != 2.4 {
		t.Fatalf("unexpected sweep samples: %#v", sweepOnly)
	}

	latest, err := store.LatestSample(ctx, r.ID)
	if err != nil {
		t.Fatalf("LatestSample: %v", err)
	}
	if latest == nil || latest.Seq != 3 {
		t.Fatalf("expected latest seq 3, got %#v", latest)
	}
}

func TestSweepPointUpsert(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.MustNewRun(t, store, cfg, "sweep", "fp-sweep")

	point := run.SweepPoint{RunID: r.ID, LoadOhms: 2.4, MeanEMFVolts: 3.0, MeanAmps: 0.62, MeanWatts: 0.94, SampleCount: 20}
	if err := store.UpsertSweepPoint(ctx, point); err != nil {
		t.Fatalf("UpsertSweepPoint: %v", err)
	}
	point.MeanWatts = 0.96
	if err := store.UpsertSweepPoint(ctx, point); err != nil {
		t.Fatalf("UpsertSweepPoint update: %v", err)
	}

	points, err := store.SweepPointsForRun(ctx, r.ID)
	if err != nil {
		t.Fatalf("SweepPointsForRun: %v", err)
	}
	if len(points) != 1 {
		t.Fatalf("expected 1 sweep point, got %d", len(points))
	}
	if points[0].MeanWatts != 0.96 {
		t.Fatalf("expected updated mean watts, got %v", points[0].MeanWatts)
	}
}

func TestClearCascadesToSamples(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.MustNewRun(t, store, cfg, "cascade", "fp-cascade")
	if err := store.AppendSamples(ctx, r.ID, []run.Sample{{THotC: 40, TColdC: 25, Phase: run.PhaseOpen}}); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	if _, err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	count, err := store.SampleCount(ctx, r.ID)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected samples removed with run, found %d", count)
	}
}

func TestRetryFailedResetsRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	r := testsupport.MustNewRun(t, store, cfg, "retry", "fp-retry")
	r.SetFailed("instrument disconnected")
	r.ResultsJSON = `{"stale":true}`
	if err := store.Update(ctx, r); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.AppendSamples(ctx, r.ID, []run.Sample{{THotC: 50, TColdC: 25, Phase: run.PhaseSweep}}); err != nil {
		t.Fatalf("AppendSamples: %v", err)
	}

	count, err := store.RetryFailed(ctx, r.ID)
	if err != nil {
		t.Fatalf("RetryFailed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 retried run, got %d", count)
	}

	updated, _ := store.GetByID(ctx, r.ID)
	if updated.Status != run.StatusPending {
		t.Fatalf("expected pending after retry, got %s", updated.Status)
	}
	if updated.ErrorMessage != "" || updated.ResultsJSON != "" {
		t.Fatalf("expected retry to clear error and results: %#v", updated)
	}
	samples, _ := store.SampleCount(ctx, r.ID)
	if samples != 0 {
		t.Fatalf("expected retry to purge samples, found %d", samples)
	}
}

func TestHealthSummaryCounts(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	statuses := []run.Status{
		run.StatusPending,
		run.StatusAcquiring,
		run.StatusCompleted,
		run.StatusFailed,
	}
	for i, status := range statuses {
		r := testsupport.MustNewRun(t, store, cfg, string(status), fmt.Sprintf("fp-health-%d", i))
		r.Status = status
		if status == run.StatusFailed {
			r.NeedsReview = true
			r.ReviewReason = "efficiency above Carnot bound"
		}
		if err := store.Update(ctx, r); err != nil {
			t.Fatalf("Update: %v", err)
		}
	}

	summary, err := store.Health(ctx)
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if summary.Total != 4 || summary.Pending != 1 || summary.Processing != 1 ||
		summary.Completed != 1 || summary.Failed != 1 || summary.Review != 1 {
		t.Fatalf("unexpected summary: %#v", summary)
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := run.ParseStatus(" Acquiring "); !ok || status != run.StatusAcquiring {
		t.Fatalf("expected acquiring, got %q ok=%v", status, ok)
	}
	if _, ok := run.ParseStatus("ripping"); ok {
		t.Fatal("expected unknown status to be rejected")
	}
}

func TestCheckHealth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	health, err := store.CheckHealth(context.Background())
	if err != nil {
		t.Fatalf("CheckHealth: %v", err)
	}
	if !health.DatabaseExists || !health.DatabaseReadable || !health.TableExists || !health.IntegrityCheck {
		t.Fatalf("unexpected health: %#v", health)
	}
	if health.SchemaVersion != "1" {
		t.Fatalf("expected schema version 1, got %q", health.SchemaVersion)
	}
}
