// Package analyze fits the acquired data and writes the run's results: the
// Seebeck coefficient fit, the power sweep peak, efficiency against the
// Carnot bound, and the loss estimate.
package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"seebeck/internal/analysis"
	"seebeck/internal/config"
	"seebeck/internal/logging"
	"seebeck/internal/run"
	"seebeck/internal/services"
	"seebeck/internal/stage"
)

// Handler computes and persists a run's analysis results.
type Handler struct {
	cfg    *config.Config
	store  *run.Store
	logger *slog.Logger
}

// New constructs the analyze stage handler.
func New(cfg *config.Config, store *run.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Handler{cfg: cfg, store: store, logger: logger}
}

// SetLogger replaces the stage logger.
func (h *Handler) SetLogger(logger *slog.Logger) {
	if logger == nil {
		logger = logging.NewNop()
	}
	h.logger = logger
}

// Prepare verifies the run has data to analyze.
func (h *Handler) Prepare(ctx context.Context, item *run.Run) error {
	count, err := h.store.SampleCount(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "count samples", "Could not read stored samples", err)
	}
	if count == 0 {
		return services.Wrap(services.ErrValidation, "analyze", "check samples",
			"Run has no stored samples; acquisition must run first", nil)
	}
	item.SetProgress("Analyzing", "Fitting acquired data", 0)
	return nil
}

// Execute runs the analysis and stores results_json. Results are written
// exactly once per run; a retry clears them before re-entering this stage.
func (h *Handler) Execute(ctx context.Context, item *run.Run) error {
	logger := logging.WithContext(ctx, h.logger)

	samples, err := h.store.SamplesForRun(ctx, item.ID, "")
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "load samples", "Could not read stored samples", err)
	}
	points, err := h.store.SweepPointsForRun(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "load sweep points", "Could not read sweep points", err)
	}

	result, err := analysis.Analyze(h.cfg, samples, points)
	if err != nil {
		return services.Wrap(services.ErrValidation, "analyze", "fit data",
			"Acquired data is incomplete or unusable", err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return services.Wrap(services.ErrTransient, "analyze", "encode results", "Could not serialize results", err)
	}
	item.ResultsJSON = string(encoded)

	if len(result.ReviewReasons) > 0 {
		item.NeedsReview = true
		item.ReviewReason = strings.Join(result.ReviewReasons, "; ")
		logger.Warn("analysis flagged run for review",
			logging.String("review_reason", item.ReviewReason),
			logging.String(logging.FieldEventType, "analysis_review"),
		)
	}

	logger.Info("analysis complete",
		logging.Float64("seebeck_v_per_k", result.Seebeck.SlopeVPerK),
		logging.Float64("fit_r2", result.Seebeck.R2),
		logging.Float64("peak_watts", result.Power.PeakWatts),
		logging.Float64("peak_load_ohms", result.Power.PeakLoadOhms),
		logging.String(logging.FieldEventType, "analysis_complete"),
	)
	item.SetProgressComplete("Analyzed", summarize(result))
	return nil
}

// HealthCheck verifies the store answers queries.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if _, err := h.store.Health(ctx); err != nil {
		return stage.Unhealthy("analyze", err.Error())
	}
	return stage.Healthy("analyze")
}

func summarize(result *analysis.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "α=%.4f V/K, R²=%.3f, peak %.3f W at %.2f Ω",
		result.Seebeck.SlopeVPerK, result.Seebeck.R2, result.Power.PeakWatts, result.Power.PeakLoadOhms)
	for _, check := range result.Checks {
		if !check.Passed {
			b.WriteString("; ")
			b.WriteString(check.Name)
			b.WriteString(" failed")
		}
	}
	return b.String()
}
