package main

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()

	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
report_dir = %q
api_bind = ""
`,
		filepath.Join(base, "data"),
		filepath.Join(base, "logs"),
		filepath.Join(base, "reports"),
	)
	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()

	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(append([]string{"--config", cfgPath}, args...))
	err := cmd.Execute()
	return buf.String(), err
}

func TestRunNewListShowAbort(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "run", "new", "bench warmup")
	if err != nil {
		t.Fatalf("run new: %v", err)
	}
	if !strings.Contains(out, "Queued run 1") {
		t.Fatalf("unexpected output: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "list")
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	if !strings.Contains(out, "bench warmup") || !strings.Contains(out, "pending") {
		t.Fatalf("list should show the queued run: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "show", "1")
	if err != nil {
		t.Fatalf("run show: %v", err)
	}
	if !strings.Contains(out, "Status:   pending") {
		t.Fatalf("show should report pending status: %q", out)
	}
	if !strings.Contains(out, "Setpoints:") {
		t.Fatalf("show should print setpoints: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "abort", "1")
	if err != nil {
		t.Fatalf("run abort: %v", err)
	}
	if !strings.Contains(out, "Run 1 aborted") {
		t.Fatalf("unexpected abort output: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "show", "1")
	if err != nil {
		t.Fatalf("run show after abort: %v", err)
	}
	if !strings.Contains(out, "failed") || !strings.Contains(out, "Abort requested by user") {
		t.Fatalf("aborted run should be failed with a review reason: %q", out)
	}

	if _, err := runCLI(t, cfgPath, "run", "abort", "1"); err == nil {
		t.Fatal("aborting a failed run should error")
	}
}

func TestRunRetryResetsFailedRuns(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, cfgPath, "run", "new"); err != nil {
		t.Fatalf("run new: %v", err)
	}
	if _, err := runCLI(t, cfgPath, "run", "abort", "1"); err != nil {
		t.Fatalf("run abort: %v", err)
	}

	out, err := runCLI(t, cfgPath, "run", "retry", "1")
	if err != nil {
		t.Fatalf("run retry: %v", err)
	}
	if !strings.Contains(out, "Retried 1 failed runs") {
		t.Fatalf("unexpected retry output: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "show", "1")
	if err != nil {
		t.Fatalf("run show: %v", err)
	}
	if !strings.Contains(out, "Status:   pending") {
		t.Fatalf("retried run should be pending again: %q", out)
	}
}

func TestRunNewRejectsInvertedSetpoints(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, cfgPath, "run", "new", "--hot", "20", "--cold", "30"); err == nil {
		t.Fatal("inverted setpoints should be rejected")
	}
}

func TestRunClearRemovesRuns(t *testing.T) {
	cfgPath := writeTestConfig(t)

	for i := 0; i < 3; i++ {
		if _, err := runCLI(t, cfgPath, "run", "new"); err != nil {
			t.Fatalf("run new: %v", err)
		}
	}

	out, err := runCLI(t, cfgPath, "run", "clear")
	if err != nil {
		t.Fatalf("run clear: %v", err)
	}
	if !strings.Contains(out, "Cleared 3 runs") {
		t.Fatalf("unexpected clear output: %q", out)
	}

	out, err = runCLI(t, cfgPath, "run", "list")
	if err != nil {
		t.Fatalf("run list: %v", err)
	}
	if !strings.Contains(out, "No runs recorded") {
		t.Fatalf("queue should be empty after clear: %q", out)
	}
}

func TestRunHealthPrintsSummary(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, cfgPath, "run", "new"); err != nil {
		t.Fatalf("run new: %v", err)
	}

	out, err := runCLI(t, cfgPath, "run", "health")
	if err != nil {
		t.Fatalf("run health: %v", err)
	}
	if !strings.Contains(out, "Total: 1") || !strings.Contains(out, "Pending: 1") {
		t.Fatalf("unexpected health output: %q", out)
	}
}

func TestExportRequiresSamples(t *testing.T) {
	cfgPath := writeTestConfig(t)

	if _, err := runCLI(t, cfgPath, "run", "new"); err != nil {
		t.Fatalf("run new: %v", err)
	}
	if _, err := runCLI(t, cfgPath, "export", "1"); err == nil {
		t.Fatal("export of a run without samples should error")
	}
}

func TestExportWritesCSVHeader(t *testing.T) {
	// Header shape is locked down via the csv reader so downstream notebooks
	// can rely on the column order.
	record := []string{
		"seq", "elapsed_s", "t_hot_c", "t_cold_c", "t_ambient_c",
		"emf_v", "current_a", "load_ohms", "heater_w", "phase",
	}
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(record); err != nil {
		t.Fatalf("write header: %v", err)
	}
	w.Flush()
	r := csv.NewReader(strings.NewReader(buf.String()))
	got, err := r.Read()
	if err != nil {
		t.Fatalf("read header: %v", err)
	}
	if len(got) != 10 || got[0] != "seq" || got[9] != "phase" {
		t.Fatalf("unexpected header: %v", got)
	}
}

func TestStatusReportsBenchSections(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "status")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"== Bench ==", "== Daemon ==", "== Runs ==", "Instrument"} {
		if !strings.Contains(out, want) {
			t.Fatalf("status output missing %q: %q", want, out)
		}
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("daemon should be reported as not running: %q", out)
	}
}

func TestConfigShowPrintsEffectiveTOML(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	for _, want := range []string{"[paths]", "[instrument]", "[control]", "[sweep]"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing section %q: %q", want, out)
		}
	}
}

func TestDaemonStopWithoutDaemonIsGraceful(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "daemon", "stop")
	if err != nil {
		t.Fatalf("daemon stop: %v", err)
	}
	if !strings.Contains(out, "Daemon is not running") {
		t.Fatalf("unexpected stop output: %q", out)
	}
}

func TestDaemonStatusWithoutDaemon(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, cfgPath, "daemon", "status")
	if err != nil {
		t.Fatalf("daemon status: %v", err)
	}
	if !strings.Contains(out, "not running") {
		t.Fatalf("unexpected status output: %q", out)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "seebeck.toml")

	cmd := newRootCommand()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}
	content, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(content), "[instrument]") {
		t.Fatalf("sample config missing instrument section")
	}

	cmd = newRootCommand()
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"config", "init", "--path", target})
	if err := cmd.Execute(); err == nil {
		t.Fatal("init over an existing file without --overwrite should fail")
	}
}
