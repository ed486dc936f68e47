package api

import (
	"context"

	"seebeck/internal/run"
)

// RunReader abstracts run persistence interactions needed for API queries.
type RunReader interface {
	List(ctx context.Context, statuses ...run.Status) ([]*run.Run, error)
	GetByID(ctx context.Context, id int64) (*run.Run, error)
	SamplesForRun(ctx context.Context, runID int64, phase run.Phase) ([]run.Sample, error)
	SweepPointsForRun(ctx context.Context, runID int64) ([]run.SweepPoint, error)
	Stats(ctx context.Context) (map[run.Status]int, error)
}

// RunsService exposes read-only run operations returning API DTOs.
type RunsService struct {
	store RunReader
}

// NewRunsService constructs a RunsService around the provided reader.
func NewRunsService(store RunReader) *RunsService {
	if store == nil {
		return nil
	}
	return &RunsService{store: store}
}

// List returns runs filtered by status.
func (s *RunsService) List(ctx context.Context, statuses ...run.Status) ([]Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	items, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, err
	}
	return FromRuns(items), nil
}

// Describe fetches a single run.
func (s *RunsService) Describe(ctx context.Context, id int64) (*Run, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	item, err := s.store.GetByID(ctx, id)
	if err != nil || item == nil {
		return nil, err
	}
	dto := FromRun(item)
	return &dto, nil
}

// Samples fetches a run's stored samples and sweep aggregates. When phase is
// non-empty only samples from that phase are returned.
func (s *RunsService) Samples(ctx context.Context, id int64, phase run.Phase) (*SamplesResponse, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	samples, err := s.store.SamplesForRun(ctx, id, phase)
	if err != nil {
		return nil, err
	}
	points, err := s.store.SweepPointsForRun(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := &SamplesResponse{RunID: id}
	for _, sample := range samples {
		resp.Samples = append(resp.Samples, FromSample(sample))
	}
	for _, point := range points {
		resp.SweepPoints = append(resp.SweepPoints, FromSweepPoint(point))
	}
	return resp, nil
}

// Stats returns run summary counts keyed by status string.
func (s *RunsService) Stats(ctx context.Context) (map[string]int, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out, nil
}
