package preflight

import (
	"context"

	"seebeck/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckConfig(cfg),
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Report directory", cfg.Paths.ReportDir),
		CheckDiskSpace("Data disk space", cfg.Paths.DataDir),
		CheckInstrument(ctx, cfg),
	}
	return results
}
