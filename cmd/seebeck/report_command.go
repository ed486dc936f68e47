package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"seebeck/internal/analysis"
	"seebeck/internal/report"
	"seebeck/internal/run"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "report <runID>",
		Short: "Print the analysis report for a run",
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

				// Prefer the rendered file written by the report stage.
				if item.ReportPath != "" {
					content, err := os.ReadFile(item.ReportPath)
					if err == nil {
						_, err = cmd.OutOrStdout().Write(content)
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "report file unreadable (%v); rendering from stored results\n", err)
				}

				if item.ResultsJSON == "" {
					return fmt.Errorf("run %d has no analysis results yet (status %s)", id, item.Status)
				}
				var result analysis.Result
				if err := json.Unmarshal([]byte(item.ResultsJSON), &result); err != nil {
					return fmt.Errorf("decode results: %w", err)
				}
				params, err := run.DecodeParams(item.ParamsJSON)
				if err != nil {
					return err
				}
				points, err := store.SweepPointsForRun(cmd.Context(), item.ID)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), report.Render(item, params, &result, points))
				return nil
			})
		},
	}
}
