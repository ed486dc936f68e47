package instrument

import (
	"context"
	"fmt"

	"seebeck/internal/config"
)

// OpenCircuit selects no load at all; the EMF channel then reads the
// open-circuit Seebeck voltage directly.
const OpenCircuit float64 = 0

// Reading is one snapshot of every measurement channel. ElapsedSeconds is the
// rig's own clock: simulated time for the sim driver, wall time since open
// for hardware. All settle windows and sample spacing are measured against
// it so simulated runs are independent of wall-clock speed.
type Reading struct {
	ElapsedSeconds float64
	THotC          float64
	TColdC         float64
	TAmbientC      float64
	EMFVolts       float64
	CurrentAmps    float64
	LoadOhms       float64
	HeaterWatts    float64
	CoolerWatts    float64
}

// DeltaT returns the hot/cold temperature difference in kelvin.
func (r Reading) DeltaT() float64 {
	return r.THotC - r.TColdC
}

// PowerWatts returns the electrical power delivered to the selected load.
func (r Reading) PowerWatts() float64 {
	return r.EMFVolts * r.CurrentAmps
}

// Rig is the bench surface the control loops and acquisition stages drive:
// thermocouples, the EMF/current meter, heater and cooler drives, and the
// switched load bank.
type Rig interface {
	// Read advances the rig clock and samples every channel.
	Read(ctx context.Context) (Reading, error)
	// SetHeaterPower drives the heating pad, clamped to the rig's limit.
	SetHeaterPower(ctx context.Context, watts float64) error
	// SetCoolerPower drives the fan/Peltier cold-side sink.
	SetCoolerPower(ctx context.Context, watts float64) error
	// SelectLoad switches the load bank to the given resistance.
	// OpenCircuit disconnects the load entirely.
	SelectLoad(ctx context.Context, ohms float64) error
	Close() error
}

// New constructs the rig selected by the configuration.
func New(cfg *config.Config) (Rig, error) {
	switch cfg.Instrument.Driver {
	case "sim":
		return NewSimRig(cfg), nil
	case "serial":
		// TODO(hardware): serial DAQ driver once the bench protocol is frozen.
		return nil, fmt.Errorf("instrument driver %q not yet implemented", cfg.Instrument.Driver)
	default:
		return nil, fmt.Errorf("unknown instrument driver %q", cfg.Instrument.Driver)
	}
}
