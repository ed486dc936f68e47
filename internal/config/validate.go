package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		problems = append(problems, "paths.log_dir must be set")
	}

	switch c.Instrument.Driver {
	case "sim":
	case "serial":
		if c.Instrument.SerialDevice == "" {
			problems = append(problems, "instrument.serial_device required for the serial driver")
		}
	default:
		problems = append(problems, fmt.Sprintf("instrument.driver: unknown driver %q (want sim or serial)", c.Instrument.Driver))
	}
	if c.Instrument.SampleIntervalMS <= 0 {
		problems = append(problems, "instrument.sample_interval_ms must be positive")
	}
	if c.Instrument.HeaterMaxWatts <= 0 {
		problems = append(problems, "instrument.heater_max_watts must be positive")
	}

	if c.Instrument.Driver == "sim" {
		sim := c.Instrument.Sim
		if sim.StepSeconds <= 0 {
			problems = append(problems, "instrument.sim.step_seconds must be positive")
		}
		if sim.SeebeckVPerK <= 0 {
			problems = append(problems, "instrument.sim.seebeck_v_per_k must be positive")
		}
		if sim.InternalOhms <= 0 {
			problems = append(problems, "instrument.sim.internal_ohms must be positive")
		}
		if sim.ConductanceWPerK <= 0 {
			problems = append(problems, "instrument.sim.conductance_w_per_k must be positive")
		}
		if sim.HotMassJPerK <= 0 || sim.ColdMassJPerK <= 0 {
			problems = append(problems, "instrument.sim thermal masses must be positive")
		}
		if sim.Emissivity < 0 || sim.Emissivity > 1 {
			problems = append(problems, "instrument.sim.emissivity must lie in [0, 1]")
		}
	}

	if c.Control.HotSetpointC <= c.Control.ColdSetpointC {
		problems = append(problems, "control.hot_setpoint_c must exceed control.cold_setpoint_c")
	}
	if c.Control.SettleBandC <= 0 {
		problems = append(problems, "control.settle_band_c must be positive")
	}
	if c.Control.SettleWindowS <= 0 {
		problems = append(problems, "control.settle_window_s must be positive")
	}
	if c.Control.TickMS <= 0 {
		problems = append(problems, "control.tick_ms must be positive")
	}

	if len(c.Sweep.LoadOhms) == 0 {
		problems = append(problems, "sweep.load_ohms must list at least one load resistance")
	}
	for _, load := range c.Sweep.LoadOhms {
		if load <= 0 {
			problems = append(problems, fmt.Sprintf("sweep.load_ohms: resistance %v must be positive", load))
			break
		}
	}
	if c.Sweep.SamplesPerPoint <= 0 {
		problems = append(problems, "sweep.samples_per_point must be positive")
	}
	if len(c.Sweep.OpenHotStepsC) < 2 {
		problems = append(problems, "sweep.open_hot_steps_c needs at least two hot-side steps for the Seebeck fit")
	}

	if c.Analysis.R2Threshold <= 0 || c.Analysis.R2Threshold > 1 {
		problems = append(problems, "analysis.r2_threshold must lie in (0, 1]")
	}
	if c.Analysis.LossFractionLimit <= 0 || c.Analysis.LossFractionLimit >= 1 {
		problems = append(problems, "analysis.loss_fraction_limit must lie in (0, 1)")
	}
	if c.Analysis.Emissivity < 0 || c.Analysis.Emissivity > 1 {
		problems = append(problems, "analysis.emissivity must lie in [0, 1]")
	}

	if c.Workflow.HeartbeatInterval <= 0 {
		problems = append(problems, "workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		problems = append(problems, "workflow.heartbeat_timeout must exceed workflow.heartbeat_interval")
	}

	switch c.Logging.Format {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format: unsupported value %q", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
