package main

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"seebeck/internal/run"
)

func newExportCommand(ctx *commandContext) *cobra.Command {
	var outPath string
	var phaseFlag string

	cmd := &cobra.Command{
		Use:   "export <runID>",
		Short: "Export a run's raw samples as CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseRunID(args[0])
			if err != nil {
				return err
			}
			return ctx.withStore(func(store *run.Store) error {
				item, err := store.GetByID(cmd.Context(), id)
				if err != nil {
					return err
				}
				if item == nil {
					return fmt.Errorf("run %d not found", id)
				}

				samples, err := store.SamplesForRun(cmd.Context(), id, run.Phase(phaseFlag))
				if err != nil {
					return err
				}
				if len(samples) == 0 {
					return fmt.Errorf("run %d has no stored samples", id)
				}

				out := cmd.OutOrStdout()
				if outPath != "" {
					f, err := os.Create(outPath)
					if err != nil {
						return fmt.Errorf("create %s: %w", outPath, err)
					}
					defer f.Close()
					out = f
				}

				w := csv.NewWriter(out)
				header := []string{
					"seq", "elapsed_s", "t_hot_c", "t_cold_c", "t_ambient_c",
					"emf_v", "current_a", "load_ohms", "heater_w", "phase",
				}
				if err := w.Write(header); err != nil {
					return err
				}
				for _, s := range samples {
					record := []string{
						strconv.FormatInt(s.Seq, 10),
						formatFloat(s.ElapsedSeconds),
						formatFloat(s.THotC),
						formatFloat(s.TColdC),
						formatFloat(s.TAmbientC),
						formatFloat(s.EMFVolts),
						formatFloat(s.CurrentAmps),
						formatFloat(s.LoadOhms),
						formatFloat(s.HeaterWatts),
						string(s.Phase),
					}
					if err := w.Write(record); err != nil {
						return err
					}
				}
				w.Flush()
				if err := w.Error(); err != nil {
					return err
				}
				if outPath != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d samples to %s\n", len(samples), outPath)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&outPath, "csv", "", "Write CSV to a file instead of stdout")
	cmd.Flags().StringVar(&phaseFlag, "phase", "", "Only export samples from one phase (stabilize, open, sweep)")
	return cmd
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
