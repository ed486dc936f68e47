package analysis

import (
	"fmt"
	"math"

	"seebeck/internal/config"
	"seebeck/internal/run"
)

const (
	kelvinOffset    = 273.15
	stefanBoltzmann = 5.670374419e-8 // W / (m^2 K^4)
)

// SeebeckResult is the EMF vs delta-T fit from the open-circuit series. The
// free-intercept slope is the reported Seebeck coefficient; the
// through-origin slope is kept alongside since an ideal junction pair has no
// offset voltage.
type SeebeckResult struct {
	SlopeVPerK       float64 `json:"slope_v_per_k"`
	InterceptV       float64 `json:"intercept_v"`
	OriginSlopeVPerK float64 `json:"origin_slope_v_per_k"`
	R2               float64 `json:"r2"`
	Points           int     `json:"points"`
}

// PowerResult locates the sweep's peak output power and estimates the
// module's internal resistance from it. Maximum power transfer puts the peak
// where the load matches the internal resistance.
type PowerResult struct {
	PeakLoadOhms    float64 `json:"peak_load_ohms"`
	PeakWatts       float64 `json:"peak_watts"`
	InternalOhmsEst float64 `json:"internal_ohms_est"`
}

// EfficiencyPoint compares one sweep point's conversion efficiency against
// the Carnot bound at its plate temperatures.
type EfficiencyPoint struct {
	LoadOhms  float64 `json:"load_ohms"`
	Eta       float64 `json:"eta"`
	EtaCarnot float64 `json:"eta_carnot"`
	PowerW    float64 `json:"power_w"`
	HeaterW   float64 `json:"heater_w"`
	THotC     float64 `json:"t_hot_c"`
	TColdC    float64 `json:"t_cold_c"`
}

// LossResult estimates the convective (Newton cooling) and radiative
// (Stefan-Boltzmann) leakage from both plates at the sweep's mean
// temperatures, as a fraction of mean heater power.
type LossResult struct {
	ConvectiveW  float64 `json:"convective_w"`
	RadiativeW   float64 `json:"radiative_w"`
	TotalW       float64 `json:"total_w"`
	HeaterW      float64 `json:"heater_w"`
	Fraction     float64 `json:"fraction"`
	ExceedsLimit bool    `json:"exceeds_limit"`
}

// Check is one named pass/fail verdict included in the persisted results.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// Result is the full analysis output persisted on the run.
type Result struct {
	Seebeck    SeebeckResult     `json:"seebeck"`
	Power      PowerResult       `json:"power"`
	Efficiency []EfficiencyPoint `json:"efficiency"`
	Losses     LossResult        `json:"losses"`
	Checks     []Check           `json:"checks"`

	// ReviewReasons lists the failed checks serious enough to flag the run
	// for operator review.
	ReviewReasons []string `json:"review_reasons,omitempty"`
}

const (
	CheckSeebeckFit    = "seebeck-fit-r2"
	CheckCarnotBound   = "efficiency-within-carnot"
	CheckPeakAtMatched = "peak-power-near-internal-resistance"
	CheckLossFraction  = "loss-fraction"
)

// Analyze runs the full post-acquisition analysis over a run's samples and
// aggregated sweep points. Samples supply the open-circuit EMF series and the
// ambient temperature; sweep points supply the power and efficiency data.
func Analyze(cfg *config.Config, samples []run.Sample, points []run.SweepPoint) (*Result, error) {
	var deltaT, emf []float64
	var ambientSum float64
	var ambientN int
	for _, sample := range samples {
		ambientSum += sample.TAmbientC
		ambientN++
		if sample.Phase == run.PhaseOpen {
			deltaT = append(deltaT, sample.THotC-sample.TColdC)
			emf = append(emf, sample.EMFVolts)
		}
	}
	if len(deltaT) < 2 {
		return nil, fmt.Errorf("open-circuit series: %w (have %d samples)", ErrInsufficientData, len(deltaT))
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("load sweep: %w (no sweep points)", ErrInsufficientData)
	}
	ambientC := ambientSum / float64(ambientN)

	free, err := FitLine(deltaT, emf)
	if err != nil {
		return nil, fmt.Errorf("seebeck fit: %w", err)
	}
	origin, err := FitThroughOrigin(deltaT, emf)
	if err != nil {
		return nil, fmt.Errorf("seebeck fit: %w", err)
	}

	result := &Result{
		Seebeck: SeebeckResult{
			SlopeVPerK:       free.Slope,
			InterceptV:       free.Intercept,
			OriginSlopeVPerK: origin.Slope,
			R2:               free.R2,
			Points:           free.N,
		},
	}

	result.Power = locatePeak(result.Seebeck, points)
	result.Efficiency = efficiencyTable(points)
	result.Losses = estimateLosses(cfg, ambientC, points)
	result.runChecks(cfg)
	return result, nil
}

// locatePeak finds the sweep point with the highest mean power and estimates
// the internal resistance from every point's open-circuit voltage sag:
// R_int = (V_oc - V_load) / I.
func locatePeak(seebeck SeebeckResult, points []run.SweepPoint) PowerResult {
	peak := points[0]
	for _, point := range points[1:] {
		if point.MeanWatts > peak.MeanWatts {
			peak = point
		}
	}

	var estSum float64
	var estN int
	for _, point := range points {
		if point.MeanAmps <= 0 {
			continue
		}
		openVolts := seebeck.SlopeVPerK*(point.MeanTHotC-point.MeanTColdC) + seebeck.InterceptV
		est := (openVolts - point.MeanEMFVolts) / point.MeanAmps
		if est > 0 {
			estSum += est
			estN++
		}
	}

	result := PowerResult{PeakLoadOhms: peak.LoadOhms, PeakWatts: peak.MeanWatts}
	if estN > 0 {
		result.InternalOhmsEst = estSum / float64(estN)
	}
	return result
}

func efficiencyTable(points []run.SweepPoint) []EfficiencyPoint {
	table := make([]EfficiencyPoint, 0, len(points))
	for _, point := range points {
		entry := EfficiencyPoint{
			LoadOhms: point.LoadOhms,
			PowerW:   point.MeanWatts,
			HeaterW:  point.MeanHeaterW,
			THotC:    point.MeanTHotC,
			TColdC:   point.MeanTColdC,
		}
		if point.MeanHeaterW > 0 {
			entry.Eta = point.MeanWatts / point.MeanHeaterW
		}
		hotK := point.MeanTHotC + kelvinOffset
		coldK := point.MeanTColdC + kelvinOffset
		if hotK > 0 {
			entry.EtaCarnot = 1 - coldK/hotK
		}
		table = append(table, entry)
	}
	return table
}

func estimateLosses(cfg *config.Config, ambientC float64, points []run.SweepPoint) LossResult {
	var hotSum, coldSum, heaterSum float64
	for _, point := range points {
		hotSum += point.MeanTHotC
		coldSum += point.MeanTColdC
		heaterSum += point.MeanHeaterW
	}
	n := float64(len(points))
	hotC := hotSum / n
	coldC := coldSum / n
	heaterW := heaterSum / n

	p := cfg.Analysis
	conv := p.ConvectiveWPerK*(hotC-ambientC) + p.ConvectiveWPerK*(coldC-ambientC)
	rad := radiative(p, hotC, ambientC) + radiative(p, coldC, ambientC)

	result := LossResult{
		ConvectiveW: conv,
		RadiativeW:  rad,
		TotalW:      conv + rad,
		HeaterW:     heaterW,
	}
	if heaterW > 0 {
		result.Fraction = result.TotalW / heaterW
	}
	result.ExceedsLimit = result.Fraction > p.LossFractionLimit
	return result
}

func radiative(p config.Analysis, tempC, ambientC float64) float64 {
	tK := tempC + kelvinOffset
	aK := ambientC + kelvinOffset
	return p.Emissivity * stefanBoltzmann * p.SurfaceAreaM2 * (math.Pow(tK, 4) - math.Pow(aK, 4))
}

// runChecks evaluates the verdicts and collects the review-worthy failures.
func (r *Result) runChecks(cfg *config.Config) {
	fitOK := r.Seebeck.R2 >= cfg.Analysis.R2Threshold
	r.Checks = append(r.Checks, Check{
		Name:   CheckSeebeckFit,
		Passed: fitOK,
		Detail: fmt.Sprintf("R²=%.4f (threshold %.2f), slope %.4f V/K over %d points", r.Seebeck.R2, cfg.Analysis.R2Threshold, r.Seebeck.SlopeVPerK, r.Seebeck.Points),
	})
	if !fitOK {
		r.ReviewReasons = append(r.ReviewReasons, fmt.Sprintf("Seebeck fit R²=%.4f below threshold %.2f", r.Seebeck.R2, cfg.Analysis.R2Threshold))
	}

	carnotOK := true
	worst := ""
	for _, point := range r.Efficiency {
		if point.Eta <= 0 || point.Eta >= point.EtaCarnot {
			carnotOK = false
			worst = fmt.Sprintf("load %.2f Ω: η=%.4f vs Carnot %.4f", point.LoadOhms, point.Eta, point.EtaCarnot)
			break
		}
	}
	detail := fmt.Sprintf("all %d sweep points satisfy 0 < η < η_carnot", len(r.Efficiency))
	if !carnotOK {
		detail = worst
		r.ReviewReasons = append(r.ReviewReasons, "Second-law check failed: "+worst)
	}
	r.Checks = append(r.Checks, Check{Name: CheckCarnotBound, Passed: carnotOK, Detail: detail})

	peakOK := r.Power.InternalOhmsEst > 0 &&
		math.Abs(r.Power.PeakLoadOhms-r.Power.InternalOhmsEst) <= 0.5*r.Power.InternalOhmsEst
	r.Checks = append(r.Checks, Check{
		Name:   CheckPeakAtMatched,
		Passed: peakOK,
		Detail: fmt.Sprintf("peak %.4f W at %.2f Ω, internal resistance estimate %.2f Ω", r.Power.PeakWatts, r.Power.PeakLoadOhms, r.Power.InternalOhmsEst),
	})

	r.Checks = append(r.Checks, Check{
		Name:   CheckLossFraction,
		Passed: !r.Losses.ExceedsLimit,
		Detail: fmt.Sprintf("losses %.2f W are %.1f%% of %.2f W heater power (limit %.0f%%)", r.Losses.TotalW, r.Losses.Fraction*100, r.Losses.HeaterW, cfg.Analysis.LossFractionLimit*100),
	})
}
