package testsupport

import (
	"path/filepath"
	"testing"

	"seebeck/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test
// and timing values fast enough for test execution. It applies any provided
// options last.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.ReportDir = filepath.Join(base, "reports")
	cfg.Paths.APIBind = "127.0.0.1:0"

	// Shrink timing so stages and workflow loops finish in test time. The
	// simulator advances a full second per read, so settle windows and
	// sweeps elapse quickly regardless of wall-clock tick rate.
	cfg.Instrument.Sim.StepSeconds = 1.0
	cfg.Instrument.Sim.NoiseStddevC = 0
	cfg.Control.TickMS = 1
	cfg.Control.SettleWindowS = 2
	cfg.Control.StabilizeTimeoutS = 600
	cfg.Instrument.SampleIntervalMS = 1
	cfg.Sweep.SettleDelayS = 0.5
	cfg.Sweep.SamplesPerPoint = 5
	cfg.Workflow.QueuePollInterval = 0
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Workflow.HeartbeatInterval = 1
	cfg.Workflow.HeartbeatTimeout = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithSetpoints overrides the hot and cold setpoints on the test config.
func WithSetpoints(hotC, coldC float64) ConfigOption {
	return func(c *config.Config) {
		c.Control.HotSetpointC = hotC
		c.Control.ColdSetpointC = coldC
	}
}

// WithLoadSweep overrides the load resistance list on the test config.
func WithLoadSweep(loads ...float64) ConfigOption {
	return func(c *config.Config) {
		c.Sweep.LoadOhms = loads
	}
}

// WithOpenSteps overrides the open-circuit hot-side series on the test config.
func WithOpenSteps(stepsC ...float64) ConfigOption {
	return func(c *config.Config) {
		c.Sweep.OpenHotStepsC = stepsC
	}
}
