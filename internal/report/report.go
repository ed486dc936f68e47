// Package report renders a completed run's analysis into a plain-text report
// file and records its path on the run.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"seebeck/internal/analysis"
	"seebeck/internal/config"
	"seebeck/internal/logging"
	"seebeck/internal/run"
	"seebeck/internal/services"
	"seebeck/internal/stage"
)

// Handler writes the report file for an analyzed run.
type Handler struct {
	cfg    *config.Config
	store  *run.Store
	logger *slog.Logger
}

// New constructs the report stage handler.
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

// Prepare verifies the run carries analysis results and the report directory
// is usable.
func (h *Handler) Prepare(ctx context.Context, item *run.Run) error {
	if strings.TrimSpace(item.ResultsJSON) == "" {
		return services.Wrap(services.ErrValidation, "report", "check results",
			"Run has no analysis results; analyze must run first", nil)
	}
	if err := os.MkdirAll(h.cfg.Paths.ReportDir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "report", "create report directory",
			"Report directory is not writable", err)
	}
	item.SetProgress("Reporting", "Rendering report", 0)
	return nil
}

// Execute renders the report and records its path on the run.
func (h *Handler) Execute(ctx context.Context, item *run.Run) error {
	logger := logging.WithContext(ctx, h.logger)

	var result analysis.Result
	if err := json.Unmarshal([]byte(item.ResultsJSON), &result); err != nil {
		return services.Wrap(services.ErrValidation, "report", "decode results",
			"Stored analysis results are unreadable", err)
	}
	params, err := stage.DecodeParams(item)
	if err != nil {
		return err
	}
	points, err := h.store.SweepPointsForRun(ctx, item.ID)
	if err != nil {
		return services.Wrap(services.ErrTransient, "report", "load sweep points", "Could not read sweep points", err)
	}

	path := filepath.Join(h.cfg.Paths.ReportDir, reportFilename(item))
	content := Render(item, params, &result, points)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return services.Wrap(services.ErrTransient, "report", "write report",
			"Could not write the report file", err)
	}

	item.ReportPath = path
	logger.Info("report written",
		logging.String("report_path", path),
		logging.String(logging.FieldEventType, "report_complete"),
	)
	item.SetProgressComplete("Completed", "Report written to "+path)
	return nil
}

// HealthCheck verifies the report directory is writable.
func (h *Handler) HealthCheck(ctx context.Context) stage.Health {
	if err := os.MkdirAll(h.cfg.Paths.ReportDir, 0o755); err != nil {
		return stage.Unhealthy("report", err.Error())
	}
	return stage.Healthy("report")
}

func reportFilename(item *run.Run) string {
	label := strings.TrimSpace(strings.ToLower(item.Label))
	label = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ', r == '-', r == '_':
			return '-'
		default:
			return -1
		}
	}, label)
	label = strings.Trim(label, "-")
	if label == "" {
		return fmt.Sprintf("run-%d.txt", item.ID)
	}
	return fmt.Sprintf("run-%d-%s.txt", item.ID, label)
}
