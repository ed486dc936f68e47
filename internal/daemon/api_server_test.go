package daemon_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"seebeck/internal/acquire"
	"seebeck/internal/analyze"
	"seebeck/internal/api"
	"seebeck/internal/config"
	"seebeck/internal/daemon"
	"seebeck/internal/instrument"
	"seebeck/internal/logging"
	"seebeck/internal/report"
	"seebeck/internal/stabilize"
	"seebeck/internal/testsupport"
	"seebeck/internal/workflow"
)

func startDaemon(t *testing.T, cfg *config.Config) *daemon.Daemon {
	t.Helper()

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

	d, err := daemon.New(cfg, store, logger, manager, rig)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := d.Start(context.Background()); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}
	t.Cleanup(func() {
		if err := d.Close(); err != nil {
			t.Errorf("daemon.Close: %v", err)
		}
	})
	return d
}

func apiGet(t *testing.T, d *daemon.Daemon, token, path string, out any) int {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, "http://"+d.APIAddr()+path, nil)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func TestAPIServesStatusRunsAndLogs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

	var status api.DaemonStatus
	if code := apiGet(t, d, "", "/api/status", &status); code != http.StatusOK {
		t.Fatalf("status returned %d", code)
	}
	if !status.Running || !status.Workflow.Running {
		t.Fatalf("daemon should report running: %+v", status)
	}
	if status.Instrument != "sim" {
		t.Fatalf("unexpected instrument driver %q", status.Instrument)
	}
	if status.PID <= 0 {
		t.Fatal("status should carry the daemon pid")
	}

	item, err := d.NewRun(context.Background(), "api check")
	if err != nil {
		t.Fatalf("NewRun: %v", err)
	}

	var list api.RunListResponse
	if code := apiGet(t, d, "", "/api/runs", &list); code != http.StatusOK {
		t.Fatalf("runs returned %d", code)
	}
	found := false
	for _, r := range list.Runs {
		if r.ID == item.ID {
			found = true
			if r.Label != "api check" {
				t.Fatalf("unexpected label %q", r.Label)
			}
		}
	}
	if !found {
		t.Fatalf("queued run %d missing from list", item.ID)
	}

	var single api.RunResponse
	if code := apiGet(t, d, "", fmt.Sprintf("/api/runs/%d", item.ID), &single); code != http.StatusOK {
		t.Fatalf("run fetch returned %d", code)
	}
	if single.Run.ID != item.ID {
		t.Fatalf("fetched wrong run %d", single.Run.ID)
	}

	if code := apiGet(t, d, "", "/api/runs/999999", nil); code != http.StatusNotFound {
		t.Fatalf("missing run should 404, got %d", code)
	}
	if code := apiGet(t, d, "", "/api/runs/bogus", nil); code != http.StatusBadRequest {
		t.Fatalf("bad run id should 400, got %d", code)
	}

	var logs api.LogTailResponse
	if code := apiGet(t, d, "", "/api/logs", &logs); code != http.StatusOK {
		t.Fatalf("logs returned %d", code)
	}
	if logs.Path == "" {
		t.Fatal("log tail should name the log file")
	}
}

func TestAPIRequiresTokenWhenConfigured(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIToken = "bench-secret"
	d := startDaemon(t, cfg)

	if code := apiGet(t, d, "", "/api/status", nil); code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request should 401, got %d", code)
	}
	if code := apiGet(t, d, "wrong", "/api/status", nil); code != http.StatusUnauthorized {
		t.Fatalf("wrong token should 401, got %d", code)
	}
	var status api.DaemonStatus
	if code := apiGet(t, d, "bench-secret", "/api/status", &status); code != http.StatusOK {
		t.Fatalf("valid token should 200, got %d", code)
	}
}

func TestSecondDaemonInstanceRefusesToStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	d := startDaemon(t, cfg)

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
	second, err := daemon.New(cfg, store, logger, manager, rig)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	if err := second.Start(context.Background()); err == nil {
		second.Stop()
		t.Fatal("second instance should fail to acquire the lock")
	}

	d.Stop()
	if err := second.Start(context.Background()); err != nil {
		t.Fatalf("lock should be free after first instance stops: %v", err)
	}
	second.Stop()
}
