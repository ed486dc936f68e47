package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"seebeck/internal/preflight"
	"seebeck/internal/run"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show bench, daemon, and run-queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			for _, line := range renderSectionHeader("Bench", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, res := range preflight.RunAll(cmd.Context(), cfg) {
				kind := statusError
				if res.Passed {
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine(res.Name, kind, res.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			status, err := ctx.daemonStatus()
			if err != nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusError, err.Error(), colorize))
			} else if status == nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running (start with seebeckd)", colorize))
			} else {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
				fmt.Fprintln(out, renderStatusLine("Instrument", statusInfo, status.Instrument, colorize))
				for _, health := range status.Workflow.StageHealth {
					kind := statusError
					if health.Ready {
						kind = statusOK
					}
					fmt.Fprintln(out, renderStatusLine("Stage "+health.Name, kind, health.Detail, colorize))
				}
				if status.Workflow.LastError != "" {
					fmt.Fprintln(out, renderStatusLine("Last error", statusWarn, status.Workflow.LastError, colorize))
				}
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Runs", colorize) {
				fmt.Fprintln(out, line)
			}
			return ctx.withStore(func(store *run.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				total := 0
				for _, status := range run.AllStatuses() {
					if count := stats[status]; count > 0 {
						fmt.Fprintln(out, renderStatusLine(string(status), statusInfo, fmt.Sprintf("%d", count), colorize))
						total += count
					}
				}
				if total == 0 {
					fmt.Fprintln(out, renderStatusLine("Queue", statusInfo, "empty", colorize))
				}
				return nil
			})
		},
	}
}
