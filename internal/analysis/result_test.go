package analysis

import (
	"math"
	"testing"

	"seebeck/internal/run"
	"seebeck/internal/testsupport"
)

// benchData fabricates a physically consistent run: open-circuit EMF samples
// following V = alpha*deltaT at several hot-side steps, and a load sweep
// obeying the voltage-divider model around a fixed internal resistance.
func benchData(alpha, internalOhms float64, loads []float64) ([]run.Sample, []run.SweepPoint) {
	const (
		ambient = 25.0
		coldC   = 25.0
		heaterW = 30.0
	)

	var samples []run.Sample
	for _, hotC := range []float64{45, 55, 65, 75, 85} {
		deltaT := hotC - coldC
		samples = append(samples, run.Sample{
			THotC:     hotC,
			TColdC:    coldC,
			TAmbientC: ambient,
			EMFVolts:  alpha * deltaT,
			Phase:     run.PhaseOpen,
		})
	}

	hotC := 85.0
	deltaT := hotC - coldC
	emf := alpha * deltaT
	var points []run.SweepPoint
	for _, load := range loads {
		current := emf / (internalOhms + load)
		terminal := current * load
		points = append(points, run.SweepPoint{
			LoadOhms:     load,
			MeanEMFVolts: terminal,
			MeanAmps:     current,
			MeanWatts:    terminal * current,
			MeanTHotC:    hotC,
			MeanTColdC:   coldC,
			MeanHeaterW:  heaterW,
			SampleCount:  5,
		})
	}
	return samples, points
}

func TestAnalyzeRecoversModelParameters(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	const alpha, internal = 0.051, 2.4
	samples, points := benchData(alpha, internal, cfg.Sweep.LoadOhms)

	result, err := Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if math.Abs(result.Seebeck.SlopeVPerK-alpha) > 1e-6 {
		t.Fatalf("fitted slope %v, want %v", result.Seebeck.SlopeVPerK, alpha)
	}
	if result.Seebeck.R2 < cfg.Analysis.R2Threshold {
		t.Fatalf("noiseless data should fit cleanly, R²=%v", result.Seebeck.R2)
	}
	if result.Power.PeakLoadOhms != 2.4 {
		t.Fatalf("power should peak at the matched load, got %v Ω", result.Power.PeakLoadOhms)
	}
	if math.Abs(result.Power.InternalOhmsEst-internal) > 0.05 {
		t.Fatalf("internal resistance estimate %v, want near %v", result.Power.InternalOhmsEst, internal)
	}
	if len(result.ReviewReasons) != 0 {
		t.Fatalf("clean run should not need review: %v", result.ReviewReasons)
	}
	for _, check := range result.Checks {
		if !check.Passed {
			t.Fatalf("check %q failed on clean data: %s", check.Name, check.Detail)
		}
	}
}

func TestAnalyzeEfficiencyStaysBelowCarnot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	samples, points := benchData(0.051, 2.4, cfg.Sweep.LoadOhms)

	result, err := Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.Efficiency) != len(points) {
		t.Fatalf("want %d efficiency points, got %d", len(points), len(result.Efficiency))
	}
	for _, point := range result.Efficiency {
		if point.Eta <= 0 {
			t.Fatalf("load %v Ω: efficiency should be positive, got %v", point.LoadOhms, point.Eta)
		}
		if point.Eta >= point.EtaCarnot {
			t.Fatalf("load %v Ω: η=%v breaches Carnot bound %v", point.LoadOhms, point.Eta, point.EtaCarnot)
		}
		wantCarnot := 1 - (point.TColdC+kelvinOffset)/(point.THotC+kelvinOffset)
		if math.Abs(point.EtaCarnot-wantCarnot) > 1e-12 {
			t.Fatalf("Carnot bound %v, want %v", point.EtaCarnot, wantCarnot)
		}
	}
}

func TestAnalyzeFlagsCarnotViolation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	samples, points := benchData(0.051, 2.4, cfg.Sweep.LoadOhms)

	// An implausibly low heater reading inflates efficiency past the bound.
	for i := range points {
		points[i].MeanHeaterW = 0.001
	}

	result, err := Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(result.ReviewReasons) == 0 {
		t.Fatal("Carnot violation should flag the run for review")
	}
	var found bool
	for _, check := range result.Checks {
		if check.Name == CheckCarnotBound {
			found = true
			if check.Passed {
				t.Fatal("Carnot check should fail")
			}
		}
	}
	if !found {
		t.Fatal("Carnot check missing from results")
	}
}

func TestAnalyzeFlagsPoorFit(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	samples, points := benchData(0.051, 2.4, cfg.Sweep.LoadOhms)

	// Scramble the open-circuit EMF values so no line fits them.
	scrambled := []float64{2.0, 0.1, 1.8, 0.2, 1.1}
	idx := 0
	for i := range samples {
		if samples[i].Phase == run.PhaseOpen {
			samples[i].EMFVolts = scrambled[idx%len(scrambled)]
			idx++
		}
	}

	result, err := Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Seebeck.R2 >= cfg.Analysis.R2Threshold {
		t.Fatalf("scrambled data fit unexpectedly well: R²=%v", result.Seebeck.R2)
	}
	if len(result.ReviewReasons) == 0 {
		t.Fatal("poor fit should flag the run for review")
	}
}

func TestAnalyzeLossFraction(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	samples, points := benchData(0.051, 2.4, cfg.Sweep.LoadOhms)

	result, err := Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if result.Losses.TotalW <= 0 {
		t.Fatalf("plates above ambient must leak heat, got %v W", result.Losses.TotalW)
	}
	if result.Losses.ExceedsLimit {
		t.Fatalf("losses %.1f%% should sit under the %.0f%% limit",
			result.Losses.Fraction*100, cfg.Analysis.LossFractionLimit*100)
	}

	// Shrinking the limit below the measured fraction trips the flag.
	cfg.Analysis.LossFractionLimit = result.Losses.Fraction / 2
	result, err = Analyze(cfg, samples, points)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !result.Losses.ExceedsLimit {
		t.Fatal("loss flag should trip once the limit drops below the measured fraction")
	}
}

func TestAnalyzeRequiresData(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	samples, points := benchData(0.051, 2.4, cfg.Sweep.LoadOhms)

	if _, err := Analyze(cfg, nil, points); err == nil {
		t.Fatal("missing open-circuit series should error")
	}
	if _, err := Analyze(cfg, samples, nil); err == nil {
		t.Fatal("missing sweep points should error")
	}
}
