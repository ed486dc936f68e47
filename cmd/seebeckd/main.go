// Command seebeckd runs the measurement daemon: it owns the instrument,
// processes queued runs through the stage pipeline, and serves the HTTP API.
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"seebeck/internal/config"
	"seebeck/internal/daemon"
	"seebeck/internal/instrument"
	"seebeck/internal/logging"
	"seebeck/internal/preflight"
	"seebeck/internal/run"
	"seebeck/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	for _, check := range preflight.RunAll(ctx, cfg) {
		if check.Passed {
			logger.Info("preflight ok", logging.String("check", check.Name), logging.String("detail", check.Detail))
		} else {
			logger.Warn("preflight failed", logging.String("check", check.Name), logging.String("detail", check.Detail))
		}
	}

	store, err := run.Open(cfg)
	if err != nil {
		logger.Error("open run store", logging.Error(err))
		return
	}

	rig, err := instrument.New(cfg)
	if err != nil {
		logger.Error("open instrument", logging.Error(err))
		_ = store.Close()
		return
	}

	manager := workflow.NewManager(cfg, store, logger)
	manager.ConfigureStages(buildStages(cfg, store, rig, logger))

	d, err := daemon.New(cfg, store, logger, manager, rig)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		_ = rig.Close()
		_ = store.Close()
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("start daemon", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("seebeckd shutting down")
}
