// Package acquire runs the measurement program against a stabilized bench:
// an open-circuit EMF series across stepped hot-side temperatures for the
// Seebeck fit, then a load-resistance sweep for the power and efficiency
// analysis.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"seebeck/internal/config"
	"seebeck/internal/control"
	"seebeck/internal/instrument"
	"seebeck/internal/logging"
	"seebeck/internal/run"
	"seebeck/internal/services"
	"seebeck/internal/stage"
)

// Handler executes the acquisition program for one run.
type Handler struct {
	cfg    *config.Config
	store  *run.Store
	rig    instrument.Rig
	logger *slog.Logger
}

// New constructs the acquire stage handler.
func New(cfg *config.Config, store *run.Store, rig instrument.Rig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, store: store, rig: rig, logger: logger}
}

// SetLogger replaces the stage logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger
}

// Prepare validates the acquisition program before touching the bench.
func (h *Handler) Prepare(ctx context.Context, item *run.Run) error {
	params, err := stage.DecodeParams(item)
	if err != nil {
		return err
	}
	if len(params.OpenHotStepsC) < 2 {
		return services.Wrap(services.ErrValidation, "acquire", "check open-circuit series",
			"Need at least two hot-side steps for the Seebeck fit", nil)
	}
	if len(params.LoadOhms) == 0 {
		return services.Wrap(services.ErrValidation, "acquire", "check load sweep",
			"Load sweep is empty", nil)
	}
	if params.SamplesPerPoint <= 0 {
		return services.Wrap(services.ErrValidation, "acquire", "check sampling",
			"samples_per_point must be positive", nil)
	}
	item.SetProgress("Acquiring", "Starting measurement program", 0)
	return nil
}

// Execute walks the open-circuit series and the load sweep. All pacing is
// measured on the rig clock.
func (h *Handler) Execute(ctx context.Context, item *run.Run) error {
	params, err := stage.DecodeParams(item)
	if err != nil {
		return err
	}

	logger := logging.WithContext(ctx, h.logger)
	reg := control.NewRegulator(h.cfg, h.rig)
	reg.SetHotSetpoint(params.HotSetpointC)
	reg.SetColdSetpoint(params.ColdSetpointC)
	recorder := stage.NewRecorder(h.store, item.ID, float64(params.SampleIntervalMS)/1000.0)

	session := &session{
		handler:  h,
		item:     item,
		params:   params,
		reg:      reg,
		recorder: recorder,
		logger:   logger,
		total:    len(params.OpenHotStepsC) + len(params.LoadOhms),
	}

	if err := session.openCircuitSeries(ctx); err != nil {
		return err
	}
	if err := session.loadSweep(ctx); err != nil {
		return err
	}

	if err := h.rig.SelectLoad(ctx, instrument.OpenCircuit); err != nil {
		return services.Wrap(services.ErrInstrument, "acquire", "release load", "Could not open the load bank", err)
	}
	if err := recorder.Flush(ctx); err != nil {
		return services.Wrap(services.ErrTransient, "acquire", "store samples", "Could not persist samples", err)
	}

	item.SetProgressComplete("Acquired",
		fmt.Sprintf("%d open-circuit steps, %d sweep points", len(params.OpenHotStepsC), len(params.LoadOhms)))
	return nil
}

// HealthCheck verifies the rig responds.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.rig == nil {
		return stage.Unhealthy("acquire", "no instrument attached")
	}
	if _, err := h.rig.Read(ctx); err != nil {
		return stage.Unhealthy("acquire", err.Error())
	}
	return stage.Healthy("acquire")
}

// session carries the per-execution state so the two program halves share
// pacing, progress accounting, and the regulator.
type session struct {
	handler  *Handler
	item     *run.Run
	params   run.Params
	reg      *control.Regulator
	recorder *stage.Recorder
	logger   *slog.Logger
	total    int
	done     int
}

// openCircuitSeries steps the hot setpoint through the configured series and
// logs EMF samples with no load connected.
func (s *session) openCircuitSeries(ctx context.Context) error {
	if err := s.handler.rig.SelectLoad(ctx, instrument.OpenCircuit); err != nil {
		return services.Wrap(services.ErrInstrument, "acquire", "open load bank", "Could not disconnect the load", err)
	}

	for _, stepC := range s.params.OpenHotStepsC {
		s.reg.SetHotSetpoint(stepC)
		if err := s.holdUntilStabilized(ctx, fmt.Sprintf("open-circuit step %.1f °C", stepC)); err != nil {
			return err
		}
		agg, err := s.collectSamples(ctx, run.PhaseOpen)
		if err != nil {
			return err
		}
		s.logger.Info("open-circuit step logged",
			logging.Float64("setpoint_c", stepC),
			logging.Float64("mean_emf_v", agg.emf),
			logging.Float64("mean_delta_t", agg.tHot-agg.tCold),
			logging.String(logging.FieldEventType, "open_step_complete"),
		)
		s.advanceProgress(ctx, fmt.Sprintf("Open-circuit EMF at %.1f °C", stepC))
	}
	return nil
}

// loadSweep returns the bench to the run setpoints, then visits every load
// resistance and aggregates one sweep point each.
func (s *session) loadSweep(ctx context.Context) error {
	s.reg.SetHotSetpoint(s.params.HotSetpointC)
	if err := s.holdUntilStabilized(ctx, "sweep baseline"); err != nil {
		return err
	}

	for _, load := range s.params.LoadOhms {
		if err := s.handler.rig.SelectLoad(ctx, load); err != nil {
			return services.Wrap(services.ErrInstrument, "acquire", "select load",
				fmt.Sprintf("Could not switch the load bank to %.2f Ω", load), err)
		}
		if err := s.waitRigSeconds(ctx, s.params.SettleDelayS); err != nil {
			return err
		}
		agg, err := s.collectSamples(ctx, run.PhaseSweep)
		if err != nil {
			return err
		}

		point := run.SweepPoint{
			RunID:        s.item.ID,
			LoadOhms:     load,
			MeanEMFVolts: agg.emf,
			MeanAmps:     agg.amps,
			MeanWatts:    agg.watts,
			MeanTHotC:    agg.tHot,
			MeanTColdC:   agg.tCold,
			MeanHeaterW:  agg.heater,
			SampleCount:  agg.count,
		}
		if err := s.handler.store.UpsertSweepPoint(ctx, point); err != nil {
			return services.Wrap(services.ErrTransient, "acquire", "store sweep point", "Could not persist sweep point", err)
		}
		s.logger.Info("sweep point logged",
			logging.Float64("load_ohms", load),
			logging.Float64("mean_watts", agg.watts),
			logging.Float64("mean_amps", agg.amps),
			logging.String(logging.FieldEventType, "sweep_point_complete"),
		)
		s.advanceProgress(ctx, fmt.Sprintf("Load sweep at %.2f Ω", load))
	}
	return nil
}

// holdUntilStabilized steps the regulator until the settle window passes,
// bounded by the stabilize timeout.
func (s *session) holdUntilStabilized(ctx context.Context, what string) error {
	timeoutS := s.handler.cfg.Control.StabilizeTimeoutS
	var startElapsed float64
	started := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		reading, err := s.reg.Step(ctx)
		if err != nil {
			return services.Wrap(services.ErrInstrument, "acquire", "read rig", "Instrument read failed", err)
		}
		if !started {
			startElapsed = reading.ElapsedSeconds
			started = true
		}
		if _, err := s.recorder.Observe(ctx, reading, run.PhaseStabilize); err != nil {
			return services.Wrap(services.ErrTransient, "acquire", "store sample", "Could not persist sample", err)
		}
		if s.reg.Stabilized() {
			return nil
		}
		if reading.ElapsedSeconds-startElapsed > timeoutS {
			return services.Wrap(services.ErrTimeout, "acquire", "wait for settle",
				fmt.Sprintf("Bench did not re-settle for %s within %.0f s", what, timeoutS), nil)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reg.Tick()):
		}
	}
}

// waitRigSeconds keeps regulating for the given span of rig time, storing
// nothing. Used for the post-switch settle delay.
func (s *session) waitRigSeconds(ctx context.Context, seconds float64) error {
	if seconds <= 0 {
		return nil
	}
	var startElapsed float64
	started := false
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		reading, err := s.reg.Step(ctx)
		if err != nil {
			return services.Wrap(services.ErrInstrument, "acquire", "read rig", "Instrument read failed", err)
		}
		if !started {
			startElapsed = reading.ElapsedSeconds
			started = true
		}
		if reading.ElapsedSeconds-startElapsed >= seconds {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.reg.Tick()):
		}
	}
}

type aggregate struct {
	emf    float64
	amps   float64
	watts  float64
	tHot   float64
	tCold  float64
	heater float64
	count  int
}

// collectSamples stores SamplesPerPoint readings at the sample interval and
// returns their means. The regulator keeps running between stored samples.
func (s *session) collectSamples(ctx context.Context, phase run.Phase) (aggregate, error) {
	var agg aggregate
	for agg.count < s.params.SamplesPerPoint {
		if err := ctx.Err(); err != nil {
			return aggregate{}, err
		}
		reading, err := s.reg.Step(ctx)
		if err != nil {
			return aggregate{}, services.Wrap(services.ErrInstrument, "acquire", "read rig", "Instrument read failed", err)
		}
		stored, err := s.recorder.Observe(ctx, reading, phase)
		if err != nil {
			return aggregate{}, services.Wrap(services.ErrTransient, "acquire", "store sample", "Could not persist sample", err)
		}
		if stored {
			agg.emf += reading.EMFVolts
			agg.amps += reading.CurrentAmps
			agg.watts += reading.PowerWatts()
			agg.tHot += reading.THotC
			agg.tCold += reading.TColdC
			agg.heater += reading.HeaterWatts
			agg.count++
		}
		select {
		case <-ctx.Done():
			return aggregate{}, ctx.Err()
		case <-time.After(s.reg.Tick()):
		}
	}

	n := float64(agg.count)
	agg.emf /= n
	agg.amps /= n
	agg.watts /= n
	agg.tHot /= n
	agg.tCold /= n
	agg.heater /= n
	return agg, nil
}

// advanceProgress bumps the run progress after each completed program unit.
func (s *session) advanceProgress(ctx context.Context, message string) {
	s.done++
	percent := float64(s.done) / float64(s.total) * 100
	if percent > 99 {
		percent = 99
	}
	s.item.SetProgress("Acquiring", message, percent)
	if err := s.handler.store.Update(ctx, s.item); err != nil {
		s.logger.Warn("progress update failed", logging.Error(err))
	}
}
