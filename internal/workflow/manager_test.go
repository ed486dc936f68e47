package workflow_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"seebeck/internal/acquire"
	"seebeck/internal/analysis"
	"seebeck/internal/analyze"
	"seebeck/internal/instrument"
	"seebeck/internal/logging"
	"seebeck/internal/report"
	"seebeck/internal/run"
	"seebeck/internal/services"
	"seebeck/internal/stabilize"
	"seebeck/internal/stage"
	"seebeck/internal/testsupport"
	"seebeck/internal/workflow"
)

func waitForStatus(t *testing.T, store *run.Store, id int64, want run.Status, timeout time.Duration) *run.Run {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		item, err := store.GetByID(context.Background(), id)
		if err != nil {
			t.Fatalf("GetByID: %v", err)
		}
		if item.Status == want {
			return item
		}
		if item.Status == run.StatusFailed && want != run.StatusFailed {
			t.Fatalf("run failed while waiting for %s: %s", want, item.ErrorMessage)
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %d never reached status %s", id, want)
	return nil
}

func TestManagerProcessesRunEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t,
		testsupport.WithSetpoints(55, 25),
		testsupport.WithOpenSteps(45, 55),
		testsupport.WithLoadSweep(1.2, 2.4, 4.8),
	)
	store := testsupport.MustOpenStore(t, cfg)
	rig := instrument.NewSimRig(cfg)
	logger := logging.NewNop()

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Stabilizer: stabilize.New(cfg, store, rig, logger),
		Acquirer:   acquire.New(cfg, store, rig, logger),
		Analyzer:   analyze.New(cfg, store, logger),
		Reporter:   report.New(cfg, store, logger),
	})

	item := testsupport.MustNewRun(t, store, cfg, "bench check", "fp-e2e")
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, item.ID, run.StatusCompleted, 2*time.Minute)

	if final.ResultsJSON == "" {
		t.Fatal("completed run should carry analysis results")
	}
	var result analysis.Result
	if err := json.Unmarshal([]byte(final.ResultsJSON), &result); err != nil {
		t.Fatalf("results_json unreadable: %v", err)
	}
	if result.Seebeck.R2 < cfg.Analysis.R2Threshold {
		t.Fatalf("simulated bench should produce a clean fit, R²=%v", result.Seebeck.R2)
	}
	if final.NeedsReview {
		t.Fatalf("clean run flagged for review: %s", final.ReviewReason)
	}
	if final.ReportPath == "" {
		t.Fatal("completed run should record a report path")
	}

	count, err := store.SampleCount(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("SampleCount: %v", err)
	}
	if count == 0 {
		t.Fatal("completed run should have stored samples")
	}
	points, err := store.SweepPointsForRun(context.Background(), item.ID)
	if err != nil {
		t.Fatalf("SweepPointsForRun: %v", err)
	}
	if len(points) != 3 {
		t.Fatalf("want 3 sweep points, got %d", len(points))
	}
}

// failingHandler simulates a stage hitting a review-worthy validation error.
type failingHandler struct {
	err error
}

func (f *failingHandler) Prepare(ctx context.Context, item *run.Run) error { return nil }
func (f *failingHandler) Execute(ctx context.Context, item *run.Run) error { return f.err }
func (f *failingHandler) HealthCheck(ctx context.Context) stage.Health {
	return stage.Healthy("failing")
}

func TestManagerFlagsReviewWorthyFailures(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Stabilizer: &failingHandler{err: errValidation()},
	})

	item := testsupport.MustNewRun(t, store, cfg, "bad params", "fp-review")
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, item.ID, run.StatusFailed, 10*time.Second)
	if !final.NeedsReview {
		t.Fatal("validation failure should flag the run for review")
	}
	if final.ReviewReason == "" {
		t.Fatal("review reason should be recorded")
	}
}

func TestManagerMarksTransientFailuresFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Stabilizer: &failingHandler{err: errTransient()},
	})

	item := testsupport.MustNewRun(t, store, cfg, "flaky rig", "fp-transient")
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	final := waitForStatus(t, store, item.ID, run.StatusFailed, 10*time.Second)
	if final.NeedsReview {
		t.Fatal("transient failure should not flag review")
	}
	if final.ErrorMessage == "" {
		t.Fatal("failure message should be recorded")
	}
}

func errValidation() error {
	return services.Wrap(services.ErrValidation, "stabilize", "check setpoints",
		"Hot setpoint must exceed cold setpoint", nil)
}

func errTransient() error {
	return services.Wrap(services.ErrTransient, "stabilize", "store sample",
		"Could not persist sample", nil)
}

func TestManagerStatusSummary(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	rig := instrument.NewSimRig(cfg)
	logger := logging.NewNop()

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(workflow.StageSet{
		Stabilizer: stabilize.New(cfg, store, rig, logger),
		Acquirer:   acquire.New(cfg, store, rig, logger),
		Analyzer:   analyze.New(cfg, store, logger),
		Reporter:   report.New(cfg, store, logger),
	})

	testsupport.MustNewRun(t, store, cfg, "queued", "fp-status")

	summary := manager.Status(context.Background())
	if summary.Running {
		t.Fatal("manager not started yet")
	}
	if summary.RunStats[run.StatusPending] != 1 {
		t.Fatalf("want one pending run, got %v", summary.RunStats)
	}
	if len(summary.StageHealth) != 4 {
		t.Fatalf("want health for 4 stages, got %d", len(summary.StageHealth))
	}
	for name, health := range summary.StageHealth {
		if !health.Ready {
			t.Fatalf("stage %s unhealthy: %s", name, health.Detail)
		}
	}
}
