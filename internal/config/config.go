package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir   string `toml:"data_dir"`
	LogDir    string `toml:"log_dir"`
	ReportDir string `toml:"report_dir"`
	APIBind   string `toml:"api_bind"`
	APIToken  string `toml:"api_token"`
}

// Sim contains the lumped-parameter model of the simulated bench.
type Sim struct {
	StepSeconds      float64 `toml:"step_seconds"`
	SeebeckVPerK     float64 `toml:"seebeck_v_per_k"`
	InternalOhms     float64 `toml:"internal_ohms"`
	ConductanceWPerK float64 `toml:"conductance_w_per_k"`
	HotMassJPerK     float64 `toml:"hot_mass_j_per_k"`
	ColdMassJPerK    float64 `toml:"cold_mass_j_per_k"`
	AmbientC         float64 `toml:"ambient_c"`
	ConvectiveWPerK  float64 `toml:"convective_w_per_k"`
	Emissivity       float64 `toml:"emissivity"`
	SurfaceAreaM2    float64 `toml:"surface_area_m2"`
	NoiseStddevC     float64 `toml:"noise_stddev_c"`
	NoiseSeed        int64   `toml:"noise_seed"`
}

// Instrument selects and parameterizes the rig driver.
type Instrument struct {
	Driver           string  `toml:"driver"` // "sim" or "serial"
	SerialDevice     string  `toml:"serial_device"`
	SampleIntervalMS int     `toml:"sample_interval_ms"`
	HeaterMaxWatts   float64 `toml:"heater_max_watts"`
	CoolerMaxWatts   float64 `toml:"cooler_max_watts"`
	Sim              Sim     `toml:"sim"`
}

// PIDGains holds one control loop's tuning.
type PIDGains struct {
	Kp float64 `toml:"kp"`
	Ki float64 `toml:"ki"`
	Kd float64 `toml:"kd"`
}

// Control contains the temperature regulation settings for both loops.
type Control struct {
	HotSetpointC      float64  `toml:"hot_setpoint_c"`
	ColdSetpointC     float64  `toml:"cold_setpoint_c"`
	Hot               PIDGains `toml:"hot"`
	Cold              PIDGains `toml:"cold"`
	SettleBandC       float64  `toml:"settle_band_c"`
	SettleWindowS     float64  `toml:"settle_window_s"`
	StabilizeTimeoutS float64  `toml:"stabilize_timeout_s"`
	TickMS            int      `toml:"tick_ms"`
}

// Sweep describes the load-resistance sweep and the open-circuit EMF series.
type Sweep struct {
	LoadOhms        []float64 `toml:"load_ohms"`
	SamplesPerPoint int       `toml:"samples_per_point"`
	SettleDelayS    float64   `toml:"settle_delay_s"`
	OpenHotStepsC   []float64 `toml:"open_hot_steps_c"`
}

// Analysis contains thresholds applied by the analyze stage, plus the bench
// thermal properties used to estimate convective and radiative losses. The
// loss properties describe the physical plates, so they apply to hardware
// runs as well as simulated ones.
type Analysis struct {
	R2Threshold       float64 `toml:"r2_threshold"`
	LossFractionLimit float64 `toml:"loss_fraction_limit"`
	ConvectiveWPerK   float64 `toml:"convective_w_per_k"`
	Emissivity        float64 `toml:"emissivity"`
	SurfaceAreaM2     float64 `toml:"surface_area_m2"`
}

// Workflow contains daemon timing and intervals, all in seconds.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	HeartbeatInterval  int `toml:"heartbeat_interval"`
	HeartbeatTimeout   int `toml:"heartbeat_timeout"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the seebeck daemon and CLI.
//
// Configuration sections by subsystem:
//   - Paths: data/log/report directories and API bind address
//   - Instrument: rig driver selection and simulator physics parameters
//   - Control: PID gains, setpoints, settle criteria
//   - Sweep: load resistances and open-circuit EMF series
//   - Analysis: fit and loss-estimate thresholds
//   - Workflow: daemon polling intervals and timeouts
//   - Logging: log format and level
type Config struct {
	Paths      Paths      `toml:"paths"`
	Instrument Instrument `toml:"instrument"`
	Control    Control    `toml:"control"`
	Sweep      Sweep      `toml:"sweep"`
	Analysis   Analysis   `toml:"analysis"`
	Workflow   Workflow   `toml:"workflow"`
	Logging    Logging    `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/seebeck/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("seebeck.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir, c.Paths.ReportDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
