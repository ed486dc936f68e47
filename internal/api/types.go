package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Run describes an experiment run in a transport-friendly format.
type Run struct {
	ID           int64           `json:"id"`
	Label        string          `json:"label"`
	Fingerprint  string          `json:"fingerprint,omitempty"`
	Status       string          `json:"status"`
	Progress     RunProgress     `json:"progress"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    string          `json:"createdAt,omitempty"`
	UpdatedAt    string          `json:"updatedAt,omitempty"`
	ReportPath   string          `json:"reportPath,omitempty"`
	NeedsReview  bool            `json:"needsReview"`
	ReviewReason string          `json:"reviewReason,omitempty"`
	Params       json.RawMessage `json:"params,omitempty"`
	Results      json.RawMessage `json:"results,omitempty"`
}

// RunProgress captures stage progress information for a run.
type RunProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// Sample is one stored measurement snapshot.
type Sample struct {
	Seq            int64   `json:"seq"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	THotC          float64 `json:"tHotC"`
	TColdC         float64 `json:"tColdC"`
	TAmbientC      float64 `json:"tAmbientC"`
	EMFVolts       float64 `json:"emfVolts"`
	CurrentAmps    float64 `json:"currentAmps"`
	LoadOhms       float64 `json:"loadOhms"`
	HeaterWatts    float64 `json:"heaterWatts"`
	Phase          string  `json:"phase"`
}

// SweepPoint is one aggregated load-sweep measurement.
type SweepPoint struct {
	LoadOhms     float64 `json:"loadOhms"`
	MeanEMFVolts float64 `json:"meanEmfVolts"`
	MeanAmps     float64 `json:"meanAmps"`
	MeanWatts    float64 `json:"meanWatts"`
	MeanTHotC    float64 `json:"meanTHotC"`
	MeanTColdC   float64 `json:"meanTColdC"`
	MeanHeaterW  float64 `json:"meanHeaterWatts"`
	SampleCount  int     `json:"sampleCount"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	RunStats    map[string]int `json:"runStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastRun     *Run           `json:"lastRun,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	RunDBPath    string         `json:"runDbPath"`
	LockFilePath string         `json:"lockFilePath"`
	Instrument   string         `json:"instrument"`
	Workflow     WorkflowStatus `json:"workflow"`
}

// RunListResponse wraps a collection of runs for API responses.
type RunListResponse struct {
	Runs []Run `json:"runs"`
}

// RunResponse wraps a single run.
type RunResponse struct {
	Run Run `json:"run"`
}

// SamplesResponse wraps a run's stored samples and sweep aggregates.
type SamplesResponse struct {
	RunID       int64        `json:"runId"`
	Samples     []Sample     `json:"samples"`
	SweepPoints []SweepPoint `json:"sweepPoints"`
}

// LogTailResponse carries the tail of the daemon log file.
type LogTailResponse struct {
	Path  string   `json:"path"`
	Lines []string `json:"lines"`
}
