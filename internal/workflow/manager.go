package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"seebeck/internal/config"
	"seebeck/internal/run"
	"seebeck/internal/stage"
)

// Manager coordinates run processing using registered stage handlers.
type Manager struct {
	cfg          *config.Config
	store        *run.Store
	logger       *slog.Logger
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor

	stages             []pipelineStage
	stageByStart       map[run.Status]pipelineStage
	statusOrder        []run.Status
	processingStatuses []run.Status

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastRun *run.Run
}

// StageSet bundles the concrete workflow handlers the manager orchestrates.
type StageSet struct {
	Stabilizer stage.Handler
	Acquirer   stage.Handler
	Analyzer   stage.Handler
	Reporter   stage.Handler
}

type pipelineStage struct {
	name             string
	handler          stage.Handler
	startStatus      run.Status
	processingStatus run.Status
	doneStatus       run.Status
}

// loggerAware lets the manager inject a run-scoped logger into a handler
// before each execution.
type loggerAware interface {
	SetLogger(*slog.Logger)
}

// NewManager constructs a new workflow manager.
func NewManager(cfg *config.Config, store *run.Store, logger *slog.Logger) *Manager {
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
		heartbeat: NewHeartbeatMonitor(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
	}
}

// ConfigureStages registers the concrete stage handlers the workflow will run.
func (m *Manager) ConfigureStages(set StageSet) {
	var stages []pipelineStage
	if set.Stabilizer != nil {
		stages = append(stages, pipelineStage{
			name:             "stabilize",
			handler:          set.Stabilizer,
			startStatus:      run.StatusPending,
			processingStatus: run.StatusStabilizing,
			doneStatus:       run.StatusStabilized,
		})
	}
	if set.Acquirer != nil {
		stages = append(stages, pipelineStage{
			name:             "acquire",
			handler:          set.Acquirer,
			startStatus:      run.StatusStabilized,
			processingStatus: run.StatusAcquiring,
			doneStatus:       run.StatusAcquired,
		})
	}
	if set.Analyzer != nil {
		stages = append(stages, pipelineStage{
			name:             "analyze",
			handler:          set.Analyzer,
			startStatus:      run.StatusAcquired,
			processingStatus: run.StatusAnalyzing,
			doneStatus:       run.StatusAnalyzed,
		})
	}
	if set.Reporter != nil {
		stages = append(stages, pipelineStage{
			name:             "report",
			handler:          set.Reporter,
			startStatus:      run.StatusAnalyzed,
			processingStatus: run.StatusReporting,
			doneStatus:       run.StatusCompleted,
		})
	}

	stageByStart := make(map[run.Status]pipelineStage, len(stages))
	statusOrder := make([]run.Status, 0, len(stages))
	processing := make([]run.Status, 0, len(stages))
	for _, stg := range stages {
		stageByStart[stg.startStatus] = stg
		statusOrder = append(statusOrder, stg.startStatus)
		processing = append(processing, stg.processingStatus)
	}

	m.mu.Lock()
	m.stages = stages
	m.stageByStart = stageByStart
	m.statusOrder = statusOrder
	m.processingStatuses = processing
	m.mu.Unlock()
}

func deriveStageLabel(status run.Status) string {
	switch status {
	case run.StatusStabilizing:
		return "Stabilizing"
	case run.StatusAcquiring:
		return "Acquiring"
	case run.StatusAnalyzing:
		return "Analyzing"
	case run.StatusReporting:
		return "Reporting"
	case run.StatusCompleted:
		return "Completed"
	default:
		return string(status)
	}
}
