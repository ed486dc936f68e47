package run

import (
	"strings"
	"time"
)

// Status represents the lifecycle of an experiment run.
type Status string

const (
	StatusPending     Status = "pending"
	StatusStabilizing Status = "stabilizing"
	StatusStabilized  Status = "stabilized"
	StatusAcquiring   Status = "acquiring"
	StatusAcquired    Status = "acquired"
	StatusAnalyzing   Status = "analyzing"
	StatusAnalyzed    Status = "analyzed"
	StatusReporting   Status = "reporting"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// UserStopReason is the review reason set when a user explicitly aborts a run.
const UserStopReason = "Abort requested by user"

// DaemonStopReason is the error message set when runs are failed due to daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusStabilizing,
	StatusStabilized,
	StatusAcquiring,
	StatusAcquired,
	StatusAnalyzing,
	StatusAnalyzed,
	StatusReporting,
	StatusCompleted,
	StatusFailed,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusStabilizing: {},
	StatusAcquiring:   {},
	StatusAnalyzing:   {},
	StatusReporting:   {},
}

type statusTransition struct {
	from Status
	to   Status
}

// stageRollbackTransitions maps each in-flight status back to the status a
// stuck run should resume from.
var stageRollbackTransitions = []statusTransition{
	{from: StatusStabilizing, to: StatusPending},
	{from: StatusAcquiring, to: StatusStabilized},
	{from: StatusAnalyzing, to: StatusAcquired},
	{from: StatusReporting, to: StatusAnalyzed},
}

// Phase labels the acquisition context a sample was logged under.
type Phase string

const (
	PhaseStabilize Phase = "stabilize"
	PhaseOpen      Phase = "open"
	PhaseSweep     Phase = "sweep"
)

// Run represents an experiment run persisted in SQLite.
type Run struct {
	ID              int64
	Label           string
	Fingerprint     string
	Status          Status
	ParamsJSON      string
	ResultsJSON     string
	ReportPath      string
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string
}

// Sample is one logged snapshot of all measurement channels.
type Sample struct {
	RunID          int64
	Seq            int64
	ElapsedSeconds float64
	THotC          float64
	TColdC         float64
	TAmbientC      float64
	EMFVolts       float64
	CurrentAmps    float64
	LoadOhms       float64
	HeaterWatts    float64
	Phase          Phase
}

// SweepPoint aggregates the samples taken at one load resistance.
type SweepPoint struct {
	RunID         int64
	LoadOhms      float64
	MeanEMFVolts  float64
	MeanAmps      float64
	MeanWatts     float64
	MeanTHotC     float64
	MeanTColdC    float64
	MeanHeaterW   float64
	SampleCount   int
}

// HealthSummary describes aggregated run counts per key lifecycle state.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Failed     int
	Completed  int
	Review     int
}

// DatabaseHealth captures diagnostic information about the run database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	IntegrityCheck   bool
	TotalRuns        int
	Error            string
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsProcessing returns true when the status reflects an in-flight operation.
func (r Run) IsProcessing() bool {
	_, ok := processingStatuses[r.Status]
	return ok
}

// IsProcessingStatus reports whether a status reflects an in-flight operation.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsUserStopReason reports whether a review reason represents a user-initiated abort.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// SetProgress updates all three progress fields atomically.
func (r *Run) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (r *Run) SetProgressComplete(stage, message string) {
	r.SetProgress(stage, message, 100)
}

// SetFailed marks the run as failed with the given error message.
func (r *Run) SetFailed(message string) {
	r.Status = StatusFailed
	r.ErrorMessage = message
	r.ProgressPercent = 0
	r.ProgressMessage = message
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}
