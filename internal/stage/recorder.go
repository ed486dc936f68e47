package stage

import (
	"context"

	"seebeck/internal/instrument"
	"seebeck/internal/run"
)

// recorderBatchSize bounds how many readings buffer in memory between store
// writes.
const recorderBatchSize = 50

// Recorder turns rig readings into stored samples at a fixed cadence on the
// rig clock. Readings arriving faster than the sample interval are dropped
// rather than stored, so the database cadence is independent of the control
// loop tick.
type Recorder struct {
	store      *run.Store
	runID      int64
	intervalS  float64
	lastStored float64
	primed     bool
	pending    []run.Sample
}

// NewRecorder builds a recorder for one run. intervalS is the minimum rig
// time between stored samples; zero or negative stores every reading.
func NewRecorder(store *run.Store, runID int64, intervalS float64) *Recorder {
	return &Recorder{store: store, runID: runID, intervalS: intervalS}
}

// Observe considers one reading for storage under the given phase. It
// reports whether the reading was accepted for storage.
func (r *Recorder) Observe(ctx context.Context, reading instrument.Reading, phase run.Phase) (bool, error) {
	if r.primed && r.intervalS > 0 && reading.ElapsedSeconds-r.lastStored < r.intervalS {
		return false, nil
	}
	r.lastStored = reading.ElapsedSeconds
	r.primed = true
	r.pending = append(r.pending, run.Sample{
		ElapsedSeconds: reading.ElapsedSeconds,
		THotC:          reading.THotC,
		TColdC:         reading.TColdC,
		TAmbientC:      reading.TAmbientC,
		EMFVolts:       reading.EMFVolts,
		CurrentAmps:    reading.CurrentAmps,
		LoadOhms:       reading.LoadOhms,
		HeaterWatts:    reading.HeaterWatts,
		Phase:          phase,
	})
	if len(r.pending) >= recorderBatchSize {
		return true, r.Flush(ctx)
	}
	return true, nil
}

// Flush writes any buffered samples to the store.
func (r *Recorder) Flush(ctx context.Context) error {
	if len(r.pending) == 0 {
		return nil
	}
	if err := r.store.AppendSamples(ctx, r.runID, r.pending); err != nil {
		return err
	}
	r.pending = r.pending[:0]
	return nil
}
