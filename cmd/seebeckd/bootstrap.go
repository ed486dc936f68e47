package main

import (
	"log/slog"

	"seebeck/internal/acquire"
	"seebeck/internal/analyze"
	"seebeck/internal/config"
	"seebeck/internal/instrument"
	"seebeck/internal/report"
	"seebeck/internal/run"
	"seebeck/internal/stabilize"
	"seebeck/internal/workflow"
)

func buildStages(cfg *config.Config, store *run.Store, rig instrument.Rig, logger *slog.Logger) workflow.StageSet {
	return workflow.StageSet{
		Stabilizer: stabilize.New(cfg, store, rig, logger),
		Acquirer:   acquire.New(cfg, store, rig, logger),
		Analyzer:   analyze.New(cfg, store, logger),
		Reporter:   report.New(cfg, store, logger),
	}
}
