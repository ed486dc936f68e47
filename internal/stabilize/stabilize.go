// Package stabilize brings both plates to their setpoints and holds them
// inside the settle band before any data is taken.
package stabilize

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

// Handler drives the PID loops until the bench is stable or the configured
// timeout elapses.
type Handler struct {
	cfg    *config.Config
	store  *run.Store
	rig    instrument.Rig
	logger *slog.Logger
}

// New constructs the stabilize stage handler.
func New(cfg *config.Config, store *run.Store, rig instrument.Rig, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, store: store, rig: rig, logger: logger}
}

// SetLogger replaces the stage logger; the workflow manager injects a
// run-scoped logger before each execution.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger
}

// Prepare validates the stored run parameters before heating begins.
func (h *Handler) Prepare(ctx context.Context, item *run.Run) error {
	params, err := stage.DecodeParams(item)
	if err != nil {
		return err
	}
	if params.HotSetpointC <= params.ColdSetpointC {
		return services.Wrap(services.ErrValidation, "stabilize", "check setpoints",
			"Hot setpoint must exceed cold setpoint", nil)
	}
	item.SetProgress("Stabilizing", fmt.Sprintf("Heating to %.1f °C / holding %.1f °C", params.HotSetpointC, params.ColdSetpointC), 0)
	return nil
}

// Execute runs both loops until the settle window is satisfied. Timing is
// measured on the rig clock, so the sim driver stabilizes at simulated speed.
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
	timeoutS := h.cfg.Control.StabilizeTimeoutS

	var startElapsed float64
	started := false
	lastProgress := -1.0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		reading, err := reg.Step(ctx)
		if err != nil {
			return services.Wrap(services.ErrInstrument, "stabilize", "read rig", "Instrument read failed", err)
		}
		if !started {
			startElapsed = reading.ElapsedSeconds
			started = true
		}
		if _, err := recorder.Observe(ctx, reading, run.PhaseStabilize); err != nil {
			return services.Wrap(services.ErrTransient, "stabilize", "store sample", "Could not persist sample", err)
		}

		elapsed := reading.ElapsedSeconds - startElapsed
		if percent := progressPercent(elapsed, timeoutS); percent-lastProgress >= 5 {
			lastProgress = percent
			item.SetProgress("Stabilizing",
				fmt.Sprintf("hot %.2f °C / cold %.2f °C", reading.THotC, reading.TColdC), percent)
			if err := h.store.Update(ctx, item); err != nil {
				logger.Warn("progress update failed", logging.Error(err))
			}
		}

		if reg.Stabilized() {
			if err := recorder.Flush(ctx); err != nil {
				return services.Wrap(services.ErrTransient, "stabilize", "store sample", "Could not persist sample", err)
			}
			logger.Info("bench stabilized",
				logging.Float64("t_hot_c", reading.THotC),
				logging.Float64("t_cold_c", reading.TColdC),
				logging.Float64("elapsed_s", elapsed),
				logging.String(logging.FieldEventType, "stabilize_complete"),
			)
			item.SetProgressComplete("Stabilized",
				fmt.Sprintf("hot %.2f °C / cold %.2f °C after %.0f s", reading.THotC, reading.TColdC, elapsed))
			return nil
		}

		if elapsed > timeoutS {
			_ = reg.Shutdown(ctx)
			return services.Wrap(services.ErrTimeout, "stabilize", "wait for settle",
				fmt.Sprintf("Bench did not settle within %.0f s (hot %.2f °C, cold %.2f °C)", timeoutS, reading.THotC, reading.TColdC), nil)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reg.Tick()):
		}
	}
}

// HealthCheck verifies the rig responds.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if h.rig == nil {
		return stage.Unhealthy("stabilize", "no instrument attached")
	}
	if _, err := h.rig.Read(ctx); err != nil {
		return stage.Unhealthy("stabilize", err.Error())
	}
	return stage.Healthy("stabilize")
}

func progressPercent(elapsed, timeout float64) float64 {
	if timeout <= 0 {
		return 0
	}
	percent := elapsed / timeout * 100
	if percent > 95 {
		percent = 95
	}
	return percent
}
