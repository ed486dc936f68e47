package run

import (
	"encoding/json"
	"fmt"

	"seebeck/internal/config"
)

// Params freezes the experiment parameters a run was created with, so a later
// config edit cannot change the meaning of stored data.
type Params struct {
	HotSetpointC     float64   `json:"hot_setpoint_c"`
	ColdSetpointC    float64   `json:"cold_setpoint_c"`
	LoadOhms         []float64 `json:"load_ohms"`
	SamplesPerPoint  int       `json:"samples_per_point"`
	SettleDelayS     float64   `json:"settle_delay_s"`
	OpenHotStepsC    []float64 `json:"open_hot_steps_c"`
	SampleIntervalMS int       `json:"sample_interval_ms"`
}

// ParamsFromConfig snapshots the sweep and control settings into run params.
func ParamsFromConfig(cfg *config.Config) Params {
	return Params{
		HotSetpointC:     cfg.Control.HotSetpointC,
		ColdSetpointC:    cfg.Control.ColdSetpointC,
		LoadOhms:         append([]float64(nil), cfg.Sweep.LoadOhms...),
		SamplesPerPoint:  cfg.Sweep.SamplesPerPoint,
		SettleDelayS:     cfg.Sweep.SettleDelayS,
		OpenHotStepsC:    append([]float64(nil), cfg.Sweep.OpenHotStepsC...),
		SampleIntervalMS: cfg.Instrument.SampleIntervalMS,
	}
}

// Encode serializes the params for storage.
func (p Params) Encode() (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal run params: %w", err)
	}
	return string(data), nil
}

// DecodeParams parses the stored params JSON.
func DecodeParams(raw string) (Params, error) {
	var p Params
	if raw == "" {
		return p, fmt.Errorf("run params missing")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("unmarshal run params: %w", err)
	}
	return p, nil
}
