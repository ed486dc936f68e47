package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"log/slog"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"seebeck/internal/config"
	"seebeck/internal/instrument"
	"seebeck/internal/logging"
	"seebeck/internal/run"
	"seebeck/internal/workflow"
)

// Daemon coordinates the background processing services and enforces
// single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *run.Store
	workflow *workflow.Manager
	rig      instrument.Rig
	logPath  string

	lockPath string
	pidPath  string
	lock     *flock.Flock

	api     *apiServer
	monitor *serialMonitor

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	PID          int
	Workflow     workflow.StatusSummary
	RunDBPath    string
	LockFilePath string
	Instrument   string
}

// PIDFilePath returns where a running daemon records its process id.
func PIDFilePath(cfg *config.Config) string {
	return filepath.Join(cfg.Paths.LogDir, "seebeckd.pid")
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *run.Store, logger *slog.Logger, wf *workflow.Manager, rig instrument.Rig) (*Daemon, error) {
	if cfg == nil || store == nil || logger == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, logger, and workflow manager")
	}

	if err := os.MkdirAll(cfg.Paths.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "seebeckd.lock")
	d := &Daemon{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		workflow: wf,
		rig:      rig,
		logPath:  filepath.Join(cfg.Paths.LogDir, "seebeck.log"),
		lockPath: lockPath,
		pidPath:  PIDFilePath(cfg),
		lock:     flock.New(lockPath),
	}

	srv, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.api = srv
	d.monitor = newSerialMonitor(cfg, logger)
	return d, nil
}

// Start acquires the daemon lock and launches the workflow manager, the API
// server, and the serial hotplug monitor.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another seebeck daemon instance is already running")
	}

	// The CLI's `daemon stop` signals the process named here.
	if err := os.WriteFile(d.pidPath, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		d.logger.Warn("failed to write pid file", logging.Error(err))
	}

	// Runs interrupted by a previous crash resume from their stage start.
	if reset, err := d.store.ResetStuckProcessing(ctx); err != nil {
		d.logger.Warn("failed to reset stuck runs", logging.Error(err))
	} else if reset > 0 {
		d.logger.Info("reset stuck runs from previous session", logging.Int64("count", reset))
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	if err := d.workflow.Start(d.ctx); err != nil {
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(d.ctx); err != nil {
		d.workflow.Stop()
		_ = d.lock.Unlock()
		d.cancel()
		d.ctx = nil
		d.cancel = nil
		return err
	}
	if err := d.monitor.Start(d.ctx); err != nil {
		d.logger.Warn("serial monitor unavailable", logging.Error(err))
	}

	d.running.Store(true)
	d.logger.Info("seebeck daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop stops background processing, parks the bench, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.workflow.Stop()
	d.monitor.Stop()
	d.api.stop()

	// Never leave the heater energized without a control loop.
	if d.rig != nil {
		shutdownCtx := context.Background()
		if err := d.rig.SetHeaterPower(shutdownCtx, 0); err != nil && !instrument.IsClosed(err) {
			d.logger.Warn("failed to zero heater on shutdown", logging.Error(err))
		}
		if err := d.rig.SetCoolerPower(shutdownCtx, 0); err != nil && !instrument.IsClosed(err) {
			d.logger.Warn("failed to zero cooler on shutdown", logging.Error(err))
		}
	}

	if err := os.Remove(d.pidPath); err != nil && !os.IsNotExist(err) {
		d.logger.Warn("failed to remove pid file", logging.Error(err))
	}
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.ctx = nil
	d.running.Store(false)
	d.logger.Info("seebeck daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.rig != nil {
		_ = d.rig.Close()
	}
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// NewRun creates a pending run from the current configuration.
func (d *Daemon) NewRun(ctx context.Context, label string) (*run.Run, error) {
	if d.store == nil {
		return nil, errors.New("run store unavailable")
	}
	label = strings.TrimSpace(label)
	params := run.ParamsFromConfig(d.cfg)
	item, err := d.store.NewRun(ctx, label, uuid.NewString(), params)
	if err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}
	d.logger.Info("run queued",
		logging.Int64(logging.FieldRunID, item.ID),
		logging.String("label", label),
	)
	return item, nil
}

// ListRuns returns runs filtered by optional statuses.
func (d *Daemon) ListRuns(ctx context.Context, statuses []run.Status) ([]*run.Run, error) {
	if d.store == nil {
		return nil, errors.New("run store unavailable")
	}
	if len(statuses) == 0 {
		return d.store.List(ctx)
	}
	return d.store.List(ctx, statuses...)
}

// ClearRuns removes all runs.
func (d *Daemon) ClearRuns(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("run store unavailable")
	}
	return d.store.Clear(ctx)
}

// ClearCompleted removes only completed runs.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("run store unavailable")
	}
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes only failed runs.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("run store unavailable")
	}
	return d.store.ClearFailed(ctx)
}

// ResetStuck transitions in-flight runs back to their stage start for retry.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	if d.store == nil {
		return 0, errors.New("run store unavailable")
	}
	return d.store.ResetStuckProcessing(ctx)
}

// RetryFailed resets failed runs (optionally a subset) back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []int64) (int64, error) {
	if d.store == nil {
		return 0, errors.New("run store unavailable")
	}
	return d.store.RetryFailed(ctx, ids...)
}

// RunHealth returns aggregate run diagnostics.
func (d *Daemon) RunHealth(ctx context.Context) (run.HealthSummary, error) {
	if d.store == nil {
		return run.HealthSummary{}, errors.New("run store unavailable")
	}
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (run.DatabaseHealth, error) {
	if d.store == nil {
		return run.DatabaseHealth{}, errors.New("run store unavailable")
	}
	return d.store.CheckHealth(ctx)
}

// APIAddr returns the bound API listener address, or "" when the API is
// disabled or the daemon is stopped.
func (d *Daemon) APIAddr() string {
	return d.api.addr()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary := d.workflow.Status(ctx)
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     summary,
		RunDBPath:    d.store.Path(),
		LockFilePath: d.lockPath,
		Instrument:   d.cfg.Instrument.Driver,
	}
}
