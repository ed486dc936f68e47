package analysis

import (
	"errors"
	"math"
	"testing"
)

func TestFitLineExact(t *testing.T) {
	x := []float64{10, 20, 30, 40, 50}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 0.05*xi + 0.002
	}

	fit, err := FitLine(x, y)
	if err != nil {
		t.Fatalf("FitLine: %v", err)
	}
	if math.Abs(fit.Slope-0.05) > 1e-12 {
		t.Fatalf("slope = %v, want 0.05", fit.Slope)
	}
	if math.Abs(fit.Intercept-0.002) > 1e-12 {
		t.Fatalf("intercept = %v, want 0.002", fit.Intercept)
	}
	if math.Abs(fit.R2-1) > 1e-12 {
		t.Fatalf("exact line should have R²=1, got %v", fit.R2)
	}
}

func TestFitLineNoisy(t *testing.T) {
	// Fixed symmetric perturbations keep the slope recoverable without
	// pulling in a random source.
	x := []float64{10, 20, 30, 40, 50, 60}
	noise := []float64{0.003, -0.002, 0.001, -0.003, 0.002, -0.001}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 0.05*xi + noise[i]
	}

	fit, err := FitLine(x, y)
	if err != nil {
		t.Fatalf("FitLine: %v", err)
	}
	if math.Abs(fit.Slope-0.05) > 0.002 {
		t.Fatalf("slope = %v, want within 0.002 of 0.05", fit.Slope)
	}
	if fit.R2 < 0.99 {
		t.Fatalf("mild noise should leave R² high, got %v", fit.R2)
	}
}

func TestFitThroughOrigin(t *testing.T) {
	x := []float64{5, 15, 25, 35}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 0.048 * xi
	}

	fit, err := FitThroughOrigin(x, y)
	if err != nil {
		t.Fatalf("FitThroughOrigin: %v", err)
	}
	if math.Abs(fit.Slope-0.048) > 1e-12 {
		t.Fatalf("slope = %v, want 0.048", fit.Slope)
	}
	if fit.Intercept != 0 {
		t.Fatalf("through-origin fit must have zero intercept, got %v", fit.Intercept)
	}
	if math.Abs(fit.R2-1) > 1e-12 {
		t.Fatalf("exact line should have R²=1, got %v", fit.R2)
	}
}

func TestFitErrors(t *testing.T) {
	if _, err := FitLine([]float64{1}, []float64{2}); !errors.Is(err, ErrInsufficientData) {
		t.Fatalf("single point should be insufficient, got %v", err)
	}
	if _, err := FitLine([]float64{1, 2}, []float64{1}); err == nil {
		t.Fatal("mismatched lengths should error")
	}
	if _, err := FitLine([]float64{3, 3, 3}, []float64{1, 2, 3}); err == nil {
		t.Fatal("identical x values should error")
	}
	if _, err := FitThroughOrigin([]float64{0, 0}, []float64{1, 2}); err == nil {
		t.Fatal("all-zero x values should error")
	}
}
