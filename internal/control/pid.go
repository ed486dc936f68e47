package control

import "seebeck/internal/config"

// PID is a discrete PID loop with derivative on measurement, so setpoint
// changes do not kick the output. Outputs are clamped to [outMin, outMax].
// The integral freezes while the output is saturated in the direction of the
// error (conditional integration), so a long full-power ramp does not wind
// up and overshoot the setpoint.
type PID struct {
	gains   config.PIDGains
	outMin  float64
	outMax  float64
	reverse bool

	integral float64
	lastMeas float64
	primed   bool
}

// NewPID builds a direct-acting loop: output rises when the measurement is
// below the setpoint. Used for the heater.
func NewPID(gains config.PIDGains, outMin, outMax float64) *PID {
	return &PID{gains: gains, outMin: outMin, outMax: outMax}
}

// NewReversePID builds a reverse-acting loop: output rises when the
// measurement is above the setpoint. Used for the cooler.
func NewReversePID(gains config.PIDGains, outMin, outMax float64) *PID {
	return &PID{gains: gains, outMin: outMin, outMax: outMax, reverse: true}
}

// Update advances the loop by dt seconds and returns the new output.
// A non-positive dt skips the integral and derivative terms.
func (p *PID) Update(setpoint, measurement, dt float64) float64 {
	direction := 1.0
	if p.reverse {
		direction = -1.0
	}
	err := direction * (setpoint - measurement)

	var deriv float64
	if dt > 0 && p.gains.Kd > 0 && p.primed {
		deriv = p.gains.Kd * -direction * (measurement - p.lastMeas) / dt
	}
	p.lastMeas = measurement
	p.primed = true

	out := p.gains.Kp*err + p.gains.Ki*p.integral + deriv
	if dt > 0 && p.gains.Ki > 0 {
		saturatedHigh := out >= p.outMax && err > 0
		saturatedLow := out <= p.outMin && err < 0
		if !saturatedHigh && !saturatedLow {
			p.integral += err * dt
			p.integral = clamp(p.integral, p.outMin/p.gains.Ki, p.outMax/p.gains.Ki)
		}
		out = p.gains.Kp*err + p.gains.Ki*p.integral + deriv
	}
	return clamp(out, p.outMin, p.outMax)
}

// Reset clears the accumulated state. The next Update behaves like the first.
func (p *PID) Reset() {
	p.integral = 0
	p.lastMeas = 0
	p.primed = false
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
