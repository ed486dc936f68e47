package api

import (
	"encoding/json"

	"seebeck/internal/run"
	"seebeck/internal/workflow"
)

// FromRun converts a stored run into its API representation.
func FromRun(item *run.Run) Run {
	if item == nil {
		return Run{}
	}
	dto := Run{
		ID:          item.ID,
		Label:       item.Label,
		Fingerprint: item.Fingerprint,
		Status:      string(item.Status),
		Progress: RunProgress{
			Stage:   item.ProgressStage,
			Percent: item.ProgressPercent,
			Message: item.ProgressMessage,
		},
		ErrorMessage: item.ErrorMessage,
		ReportPath:   item.ReportPath,
		NeedsReview:  item.NeedsReview,
		ReviewReason: item.ReviewReason,
	}
	if !item.CreatedAt.IsZero() {
		dto.CreatedAt = item.CreatedAt.UTC().Format(dateTimeFormat)
	}
	if !item.UpdatedAt.IsZero() {
		dto.UpdatedAt = item.UpdatedAt.UTC().Format(dateTimeFormat)
	}
	if item.ParamsJSON != "" && json.Valid([]byte(item.ParamsJSON)) {
		dto.Params = json.RawMessage(item.ParamsJSON)
	}
	if item.ResultsJSON != "" && json.Valid([]byte(item.ResultsJSON)) {
		dto.Results = json.RawMessage(item.ResultsJSON)
	}
	return dto
}

// FromRuns converts a slice of stored runs.
func FromRuns(items []*run.Run) []Run {
	if len(items) == 0 {
		return nil
	}
	out := make([]Run, 0, len(items))
	for _, item := range items {
		out = append(out, FromRun(item))
	}
	return out
}

// FromSample converts a stored sample.
func FromSample(sample run.Sample) Sample {
	return Sample{
		Seq:            sample.Seq,
		ElapsedSeconds: sample.ElapsedSeconds,
		THotC:          sample.THotC,
		TColdC:         sample.TColdC,
		TAmbientC:      sample.TAmbientC,
		EMFVolts:       sample.EMFVolts,
		CurrentAmps:    sample.CurrentAmps,
		LoadOhms:       sample.LoadOhms,
		HeaterWatts:    sample.HeaterWatts,
		Phase:          string(sample.Phase),
	}
}

// FromSweepPoint converts a stored sweep aggregate.
func FromSweepPoint(point run.SweepPoint) SweepPoint {
	return SweepPoint{
		LoadOhms:     point.LoadOhms,
		MeanEMFVolts: point.MeanEMFVolts,
		MeanAmps:     point.MeanAmps,
		MeanWatts:    point.MeanWatts,
		MeanTHotC:    point.MeanTHotC,
		MeanTColdC:   point.MeanTColdC,
		MeanHeaterW:  point.MeanHeaterW,
		SampleCount:  point.SampleCount,
	}
}

// FromStatusSummary converts workflow diagnostics into the API shape.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(summary.RunStats))
	for status, count := range summary.RunStats {
		stats[string(status)] = count
	}
	health := make([]StageHealth, 0, len(summary.StageHealth))
	for _, entry := range summary.StageHealth {
		health = append(health, StageHealth{
			Name:   entry.Name,
			Ready:  entry.Ready,
			Detail: entry.Detail,
		})
	}
	status := WorkflowStatus{
		Running:     summary.Running,
		RunStats:    stats,
		LastError:   summary.LastError,
		StageHealth: health,
	}
	if summary.LastRun != nil {
		converted := FromRun(summary.LastRun)
		status.LastRun = &converted
	}
	return status
}
