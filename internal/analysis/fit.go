package analysis

import "errors"

// ErrInsufficientData is returned when a fit or summary has too few points.
var ErrInsufficientData = errors.New("insufficient data points")

// LinearFit is a least-squares line y = Slope*x + Intercept with its
// coefficient of determination.
type LinearFit struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	R2        float64 `json:"r2"`
	N         int     `json:"n"`
}

// FitLine fits a free-intercept least-squares line to the points. R-squared
// is computed from residuals against the mean of y: 1 - SS_res/SS_tot.
func FitLine(x, y []float64) (LinearFit, error) {
	if len(x) != len(y) {
		return LinearFit{}, errors.New("mismatched series lengths")
	}
	if len(x) < 2 {
		return LinearFit{}, ErrInsufficientData
	}

	n := float64(len(x))
	var sumX, sumY, sumXX, sumXY float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXX += x[i] * x[i]
		sumXY += x[i] * y[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return LinearFit{}, errors.New("degenerate fit: x values are identical")
	}

	slope := (n*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / n

	fit := LinearFit{Slope: slope, Intercept: intercept, N: len(x)}
	fit.R2 = rSquared(x, y, func(xi float64) float64 { return slope*xi + intercept })
	return fit, nil
}

// FitThroughOrigin fits y = Slope*x with the intercept pinned at zero.
// R-squared is still computed against the mean of y so it is comparable
// with the free-intercept fit.
func FitThroughOrigin(x, y []float64) (LinearFit, error) {
	if len(x) != len(y) {
		return LinearFit{}, errors.New("mismatched series lengths")
	}
	if len(x) < 2 {
		return LinearFit{}, ErrInsufficientData
	}

	var sumXX, sumXY float64
	for i := range x {
		sumXX += x[i] * x[i]
		sumXY += x[i] * y[i]
	}
	if sumXX == 0 {
		return LinearFit{}, errors.New("degenerate fit: x values are all zero")
	}

	slope := sumXY / sumXX
	fit := LinearFit{Slope: slope, N: len(x)}
	fit.R2 = rSquared(x, y, func(xi float64) float64 { return slope * xi })
	return fit, nil
}

func rSquared(x, y []float64, predict func(float64) float64) float64 {
	var meanY float64
	for _, yi := range y {
		meanY += yi
	}
	meanY /= float64(len(y))

	var ssRes, ssTot float64
	for i := range y {
		resid := y[i] - predict(x[i])
		ssRes += resid * resid
		dev := y[i] - meanY
		ssTot += dev * dev
	}
	if ssTot == 0 {
		// A flat series fit exactly is a perfect fit; anything else is not.
		if ssRes == 0 {
			return 1
		}
		return 0
	}
	return 1 - ssRes/ssTot
}
