package instrument

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"seebeck/internal/config"
)

const (
	kelvinOffset    = 273.15
	stefanBoltzmann = 5.670374419e-8 // W / (m^2 K^4)

	// maxSubStep bounds the integration step so stiff parameter choices
	// stay numerically stable.
	maxSubStep = 0.1
)

// SimRig is a deterministic lumped-parameter model of the thermoelectric
// bench: a heating pad under the hot plate, a fan/Peltier sink on the cold
// plate, and a thermoelectric module between them feeding a switched load
// bank.
//
// Each plate is a single thermal mass. Per step the model moves heat by
// conduction through the module, Peltier transport at the junctions, half of
// the Joule heating back into each plate, and convective plus radiative
// leakage to ambient, then computes the Seebeck EMF and load current from the
// updated temperatures.
type SimRig struct {
	mu sync.Mutex

	params     config.Sim
	heaterMax  float64
	coolerMax  float64
	dt         float64
	noise      *rand.Rand

	elapsed float64
	tHot    float64
	tCold   float64
	heaterW float64
	coolerW float64
	loadOhm float64
	closed  bool
}

// NewSimRig builds a simulator from configuration, starting at ambient
// temperature with everything switched off and the load bank open.
func NewSimRig(cfg *config.Config) *SimRig {
	params := cfg.Instrument.Sim
	dt := params.StepSeconds
	if dt <= 0 {
		dt = 0.25
	}
	var noise *rand.Rand
	if params.NoiseStddevC > 0 {
		noise = rand.New(rand.NewSource(params.NoiseSeed))
	}
	return &SimRig{
		params:    params,
		heaterMax: cfg.Instrument.HeaterMaxWatts,
		coolerMax: cfg.Instrument.CoolerMaxWatts,
		dt:        dt,
		noise:     noise,
		tHot:      params.AmbientC,
		tCold:     params.AmbientC,
		loadOhm:   OpenCircuit,
	}
}

// Read advances the model by one step and reports all channels.
func (s *SimRig) Read(ctx context.Context) (Reading, error) {
	if err := ctx.Err(); err != nil {
		return Reading{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Reading{}, errClosed
	}

	s.step(s.dt)
	s.elapsed += s.dt

	emf, current := s.electrical()
	reading := Reading{
		ElapsedSeconds: s.elapsed,
		THotC:          s.tHot,
		TColdC:         s.tCold,
		TAmbientC:      s.params.AmbientC,
		EMFVolts:       emf,
		CurrentAmps:    current,
		LoadOhms:       s.loadOhm,
		HeaterWatts:    s.heaterW,
		CoolerWatts:    s.coolerW,
	}
	if s.noise != nil {
		reading.THotC += s.noise.NormFloat64() * s.params.NoiseStddevC
		reading.TColdC += s.noise.NormFloat64() * s.params.NoiseStddevC
	}
	return reading, nil
}

// SetHeaterPower drives the heating pad, clamped to [0, heater_max_watts].
func (s *SimRig) SetHeaterPower(ctx context.Context, watts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.heaterW = clamp(watts, 0, s.heaterMax)
	return nil
}

// SetCoolerPower drives the cold-side sink, clamped to [0, cooler_max_watts].
func (s *SimRig) SetCoolerPower(ctx context.Context, watts float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	s.coolerW = clamp(watts, 0, s.coolerMax)
	return nil
}

// SelectLoad switches the load bank. OpenCircuit disconnects the load.
func (s *SimRig) SelectLoad(ctx context.Context, ohms float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed
	}
	if ohms < 0 {
		ohms = OpenCircuit
	}
	s.loadOhm = ohms
	return nil
}

// Close marks the rig unusable. Further calls fail.
func (s *SimRig) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// step integrates the two-mass thermal model over dt, subdividing so a
// single update never spans more than maxSubStep seconds.
func (s *SimRig) step(dt float64) {
	for dt > 0 {
		sub := math.Min(dt, maxSubStep)
		s.substep(sub)
		dt -= sub
	}
}

func (s *SimRig) substep(dt float64) {
	p := s.params

	_, current := s.electrical()
	deltaT := s.tHot - s.tCold

	conduction := p.ConductanceWPerK * deltaT
	joule := 0.5 * current * current * p.InternalOhms
	peltierHot := p.SeebeckVPerK * current * (s.tHot + kelvinOffset)
	peltierCold := p.SeebeckVPerK * current * (s.tCold + kelvinOffset)

	hotLoss := s.ambientLoss(s.tHot)
	coldLoss := s.ambientLoss(s.tCold)

	dHot := (s.heaterW - conduction - peltierHot + joule - hotLoss) / p.HotMassJPerK
	dCold := (conduction + peltierCold + joule - s.coolerW - coldLoss) / p.ColdMassJPerK

	s.tHot += dHot * dt
	s.tCold += dCold * dt
}

// electrical returns the terminal voltage and current for the present
// temperatures and load selection. Open circuit carries no current, so the
// terminal voltage equals the full Seebeck EMF.
func (s *SimRig) electrical() (volts, amps float64) {
	emf := s.params.SeebeckVPerK * (s.tHot - s.tCold)
	if s.loadOhm == OpenCircuit {
		return emf, 0
	}
	amps = emf / (s.params.InternalOhms + s.loadOhm)
	volts = amps * s.loadOhm
	return volts, amps
}

// ambientLoss is the convective plus radiative leakage from one plate.
func (s *SimRig) ambientLoss(tempC float64) float64 {
	p := s.params
	conv := p.ConvectiveWPerK * (tempC - p.AmbientC)
	tK := tempC + kelvinOffset
	aK := p.AmbientC + kelvinOffset
	rad := p.Emissivity * stefanBoltzmann * p.SurfaceAreaM2 * (math.Pow(tK, 4) - math.Pow(aK, 4))
	return conv + rad
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
