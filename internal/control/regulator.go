package control

import (
	"context"
	"math"
	"time"

	"seebeck/internal/config"
	"seebeck/internal/instrument"
)

// Regulator runs both temperature loops against the rig: a direct-acting PID
// on the heater holding the hot plate and a reverse-acting PID on the cooler
// holding the cold plate. Settle detection is measured against the rig's own
// clock, not wall time, so simulated runs settle at simulated speed.
type Regulator struct {
	rig  instrument.Rig
	hot  *PID
	cold *PID

	hotSetpointC  float64
	coldSetpointC float64
	settleBandC   float64
	settleWindowS float64
	tick          time.Duration

	lastElapsed  float64
	settledSince float64
	haveElapsed  bool
}

// NewRegulator wires both loops from configuration. Output limits come from
// the instrument's heater and cooler power ratings.
func NewRegulator(cfg *config.Config, rig instrument.Rig) *Regulator {
	return &Regulator{
		rig:           rig,
		hot:           NewPID(cfg.Control.Hot, 0, cfg.Instrument.HeaterMaxWatts),
		cold:          NewReversePID(cfg.Control.Cold, 0, cfg.Instrument.CoolerMaxWatts),
		hotSetpointC:  cfg.Control.HotSetpointC,
		coldSetpointC: cfg.Control.ColdSetpointC,
		settleBandC:   cfg.Control.SettleBandC,
		settleWindowS: cfg.Control.SettleWindowS,
		tick:          time.Duration(cfg.Control.TickMS) * time.Millisecond,
		settledSince:  -1,
	}
}

// Tick returns the wall-clock pause callers should take between Steps.
func (r *Regulator) Tick() time.Duration {
	return r.tick
}

// HotSetpoint returns the hot-side target in Celsius.
func (r *Regulator) HotSetpoint() float64 {
	return r.hotSetpointC
}

// SetHotSetpoint retargets the hot loop and restarts settle detection. The
// integral carries over, so stepping the setpoint does not drop the heater
// to zero first.
func (r *Regulator) SetHotSetpoint(tempC float64) {
	r.hotSetpointC = tempC
	r.settledSince = -1
}

// SetColdSetpoint retargets the cold loop and restarts settle detection.
func (r *Regulator) SetColdSetpoint(tempC float64) {
	r.coldSetpointC = tempC
	r.settledSince = -1
}

// Step reads the rig once, updates both loops, and applies the new drive
// powers. The returned reading is the one the loops acted on.
func (r *Regulator) Step(ctx context.Context) (instrument.Reading, error) {
	reading, err := r.rig.Read(ctx)
	if err != nil {
		return instrument.Reading{}, err
	}

	dt := 0.0
	if r.haveElapsed {
		dt = reading.ElapsedSeconds - r.lastElapsed
	}
	r.lastElapsed = reading.ElapsedSeconds
	r.haveElapsed = true

	heater := r.hot.Update(r.hotSetpointC, reading.THotC, dt)
	cooler := r.cold.Update(r.coldSetpointC, reading.TColdC, dt)
	if err := r.rig.SetHeaterPower(ctx, heater); err != nil {
		return instrument.Reading{}, err
	}
	if err := r.rig.SetCoolerPower(ctx, cooler); err != nil {
		return instrument.Reading{}, err
	}

	r.trackSettle(reading)
	return reading, nil
}

// Stabilized reports whether both plates have stayed inside the settle band
// for a full window of rig time.
func (r *Regulator) Stabilized() bool {
	if r.settledSince < 0 {
		return false
	}
	return r.lastElapsed-r.settledSince >= r.settleWindowS
}

// Shutdown zeroes both drives. Called when a run finishes or fails so the
// bench never keeps heating unattended.
func (r *Regulator) Shutdown(ctx context.Context) error {
	if err := r.rig.SetHeaterPower(ctx, 0); err != nil {
		return err
	}
	return r.rig.SetCoolerPower(ctx, 0)
}

func (r *Regulator) trackSettle(reading instrument.Reading) {
	inBand := math.Abs(reading.THotC-r.hotSetpointC) <= r.settleBandC &&
		math.Abs(reading.TColdC-r.coldSetpointC) <= r.settleBandC
	if !inBand {
		r.settledSince = -1
		return
	}
	if r.settledSince < 0 {
		r.settledSince = reading.ElapsedSeconds
	}
}
