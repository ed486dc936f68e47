package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"seebeck/internal/analysis"
	"seebeck/internal/run"
)

var titler = cases.Title(language.English)

// Render produces the plain-text report for a completed analysis: run
// parameters, the Seebeck fit, the load sweep with efficiency and Carnot
// margins, the loss estimate, and the check verdicts.
func Render(item *run.Run, params run.Params, result *analysis.Result, points []run.SweepPoint) string {
	var b strings.Builder

	label := strings.TrimSpace(item.Label)
	if label == "" {
		label = fmt.Sprintf("run %d", item.ID)
	}
	fmt.Fprintf(&b, "Thermoelectric run report: %s\n", label)
	fmt.Fprintf(&b, "Generated %s\n", time.Now().UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Run #%d, created %s\n\n", item.ID, item.CreatedAt.UTC().Format(time.RFC3339))

	fmt.Fprintf(&b, "Setpoints: hot %.1f °C, cold %.1f °C\n", params.HotSetpointC, params.ColdSetpointC)
	fmt.Fprintf(&b, "Open-circuit steps: %s\n", joinFloats(params.OpenHotStepsC, "%.1f"))
	fmt.Fprintf(&b, "Load bank: %s Ω\n\n", joinFloats(params.LoadOhms, "%.2f"))

	b.WriteString("Seebeck coefficient (open-circuit EMF vs ΔT)\n")
	fit := table.NewWriter()
	fit.AppendHeader(table.Row{"Fit", "Slope (V/K)", "Intercept (V)", "R²", "Points"})
	fit.AppendRow(table.Row{
		"free intercept",
		fmt.Sprintf("%.5f", result.Seebeck.SlopeVPerK),
		fmt.Sprintf("%.5f", result.Seebeck.InterceptV),
		fmt.Sprintf("%.4f", result.Seebeck.R2),
		result.Seebeck.Points,
	})
	fit.AppendRow(table.Row{
		"through origin",
		fmt.Sprintf("%.5f", result.Seebeck.OriginSlopeVPerK),
		"0",
		"",
		result.Seebeck.Points,
	})
	b.WriteString(fit.Render())
	b.WriteString("\n\n")

	b.WriteString("Load sweep\n")
	sweep := table.NewWriter()
	sweep.AppendHeader(table.Row{"Load (Ω)", "V (V)", "I (A)", "P (W)", "T hot (°C)", "T cold (°C)", "η", "η Carnot", "Margin"})
	etaByLoad := make(map[float64]analysis.EfficiencyPoint, len(result.Efficiency))
	for _, point := range result.Efficiency {
		etaByLoad[point.LoadOhms] = point
	}
	for _, point := range points {
		eta := etaByLoad[point.LoadOhms]
		sweep.AppendRow(table.Row{
			fmt.Sprintf("%.2f", point.LoadOhms),
			fmt.Sprintf("%.4f", point.MeanEMFVolts),
			fmt.Sprintf("%.4f", point.MeanAmps),
			fmt.Sprintf("%.4f", point.MeanWatts),
			fmt.Sprintf("%.2f", point.MeanTHotC),
			fmt.Sprintf("%.2f", point.MeanTColdC),
			fmt.Sprintf("%.4f", eta.Eta),
			fmt.Sprintf("%.4f", eta.EtaCarnot),
			fmt.Sprintf("%.4f", eta.EtaCarnot-eta.Eta),
		})
	}
	b.WriteString(sweep.Render())
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Peak power: %.4f W at %.2f Ω (internal resistance estimate %.2f Ω)\n\n",
		result.Power.PeakWatts, result.Power.PeakLoadOhms, result.Power.InternalOhmsEst)

	fmt.Fprintf(&b, "Loss estimate: %.2f W convective + %.2f W radiative = %.2f W (%.1f%% of %.2f W heater power)\n\n",
		result.Losses.ConvectiveW, result.Losses.RadiativeW, result.Losses.TotalW,
		result.Losses.Fraction*100, result.Losses.HeaterW)

	b.WriteString("Checks\n")
	checks := table.NewWriter()
	checks.AppendHeader(table.Row{"Check", "Verdict", "Detail"})
	for _, check := range result.Checks {
		verdict := "pass"
		if !check.Passed {
			verdict = "FAIL"
		}
		checks.AppendRow(table.Row{checkTitle(check.Name), verdict, check.Detail})
	}
	b.WriteString(checks.Render())
	b.WriteString("\n")

	if item.NeedsReview {
		fmt.Fprintf(&b, "\nNEEDS REVIEW: %s\n", item.ReviewReason)
	}
	return b.String()
}

func checkTitle(name string) string {
	return titler.String(strings.ReplaceAll(name, "-", " "))
}

func joinFloats(values []float64, format string) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, fmt.Sprintf(format, value))
	}
	return strings.Join(parts, ", ")
}
