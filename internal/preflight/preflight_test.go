package preflight_test

import (
	"context"
	"path/filepath"
	"testing"

	"seebeck/internal/preflight"
	"seebeck/internal/testsupport"
)

func TestRunAllPassesWithSimBench(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	results := preflight.RunAll(context.Background(), cfg)
	if len(results) == 0 {
		t.Fatal("expected preflight results")
	}
	for _, res := range results {
		if !res.Passed {
			t.Errorf("%s failed: %s", res.Name, res.Detail)
		}
	}
}

func TestCheckDirectoryAccessCreatesMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "reports")
	res := preflight.CheckDirectoryAccess("Report directory", path)
	if !res.Passed {
		t.Fatalf("expected pass, got %s", res.Detail)
	}
}

func TestCheckDirectoryAccessRejectsEmptyPath(t *testing.T) {
	res := preflight.CheckDirectoryAccess("Data directory", "")
	if res.Passed {
		t.Fatal("empty path should not pass")
	}
}

func TestCheckInstrumentRejectsMissingSerialDevice(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instrument.Driver = "serial"
	cfg.Instrument.SerialDevice = filepath.Join(t.TempDir(), "ttyUSB9")

	res := preflight.CheckInstrument(context.Background(), cfg)
	if res.Passed {
		t.Fatal("absent serial device should fail the check")
	}
}

func TestCheckInstrumentRejectsUnknownDriver(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Instrument.Driver = "gpib"

	res := preflight.CheckInstrument(context.Background(), cfg)
	if res.Passed {
		t.Fatal("unknown driver should fail the check")
	}
}
