package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"seebeck/internal/run"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Queue and manage measurement runs",
	}

	runCmd.AddCommand(newRunNewCommand(ctx))
	runCmd.AddCommand(newRunListCommand(ctx))
	runCmd.AddCommand(newRunShowCommand(ctx))
	runCmd.AddCommand(newRunAbortCommand(ctx))
	runCmd.AddCommand(newRunRetryCommand(ctx))
	runCmd.AddCommand(newRunClearCommand(ctx))
	runCmd.AddCommand(newRunHealthCommand(ctx))

	return runCmd
}

func newRunNewCommand(ctx *commandContext) *cobra.Command {
	var hotC float64
	var coldC float64
	var loads []float64

	cmd := &cobra.Command{
		Use:   "new [label]",
		Short: "Queue a new measurement run from the current configuration",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			label := ""
			if len(args) > 0 {
				label = strings.TrimSpace(args[0])
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			params := run.ParamsFromConfig(cfg)
			if cmd.Flags().Changed("hot") {
				params.HotSetpointC = hotC
			}
			if cmd.Flags().Changed("cold") {
				params.ColdSetpointC = coldC
			}
			if len(loads) > 0 {
				params.LoadOhms = loads
			}
			if params.HotSetpointC <= params.ColdSetpointC {
				return errors.New("hot setpoint must exceed cold setpoint")
			}

			return ctx.withStore(func(store *run.Store) error {
				item, err := store.NewRun(cmd.Context(), label, uuid.NewString(), params)
				if err != nil {
					return fmt.Errorf("queue run: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued run %d (hot %.1f °C, cold %.1f °C, %d loads)\n",
					item.ID, params.HotSetpointC, params.ColdSetpointC, len(params.LoadOhms))
				return nil
			})
		},
	}

	cmd.Flags().Float64Var(&hotC, "hot", 0, "Override the hot-side setpoint in °C")
	cmd.Flags().Float64Var(&coldC, "cold", 0, "Override the cold-side setpoint in °C")
	cmd.Flags().Float64SliceVar(&loads, "loads", nil, "Override the load sweep resistances in ohms")
	return cmd
}

func newRunListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List measurement runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			var statuses []run.Status
			for _, raw := range listStatuses {
				status, ok := run.ParseStatus(raw)
				if !ok {
					return fmt.Errorf("unknown status %q", raw)
				}
				statuses = append(statuses, status)
			}

			return ctx.withStore(func(store *run.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded")
					return nil
				}
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					rows = append(rows, []string{
						strconv.FormatInt(item.ID, 10),
						item.Label,
						string(item.Status),
						formatProgress(item),
						item.CreatedAt.Local().Format(time.DateTime),
						yesNo(item.NeedsReview),
					})
				}
				table := renderTable(
					[]string{"ID", "Label", "Status", "Progress", "Created", "Review"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by run status (repeatable)")
	return cmd
}

func newRunShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <runID>",
		Short: "Show one run in detail",
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

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Run %d", item.ID)
				if item.Label != "" {
					fmt.Fprintf(out, " — %s", item.Label)
				}
				fmt.Fprintln(out)
				fmt.Fprintf(out, "Status:   %s\n", item.Status)
				fmt.Fprintf(out, "Progress: %s\n", formatProgress(item))
				fmt.Fprintf(out, "Created:  %s\n", item.CreatedAt.Local().Format(time.DateTime))
				fmt.Fprintf(out, "Updated:  %s\n", item.UpdatedAt.Local().Format(time.DateTime))
				if item.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:    %s\n", item.ErrorMessage)
				}
				if item.NeedsReview {
					fmt.Fprintf(out, "Review:   %s\n", item.ReviewReason)
				}
				if item.ReportPath != "" {
					fmt.Fprintf(out, "Report:   %s\n", item.ReportPath)
				}

				if params, err := run.DecodeParams(item.ParamsJSON); err == nil {
					fmt.Fprintf(out, "Setpoints: hot %.1f °C, cold %.1f °C\n", params.HotSetpointC, params.ColdSetpointC)
					fmt.Fprintf(out, "Loads:     %v Ω (%d samples/point)\n", params.LoadOhms, params.SamplesPerPoint)
				}

				count, err := store.SampleCount(cmd.Context(), item.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Samples:  %d\n", count)
				return nil
			})
		},
	}
}

func newRunAbortCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "abort <runID>",
		Short: "Abort a pending or in-flight run",
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
				switch item.Status {
				case run.StatusCompleted:
					return fmt.Errorf("run %d already completed", id)
				case run.StatusFailed:
					return fmt.Errorf("run %d already failed", id)
				}

				item.SetFailed(run.UserStopReason)
				item.NeedsReview = true
				item.ReviewReason = run.UserStopReason
				if err := store.Update(cmd.Context(), item); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Run %d aborted\n", id)
				return nil
			})
		},
	}
}

func newRunRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [runID...]",
		Short: "Reset failed runs back to pending",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]int64, 0, len(args))
			for _, arg := range args {
				id, err := parseRunID(arg)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			return ctx.withStore(func(store *run.Store) error {
				updated, err := store.RetryFailed(cmd.Context(), ids...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed runs\n", updated)
				return nil
			})
		},
	}
}

func newRunClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove runs and their recorded data",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(func(store *run.Store) error {
				var removed int64
				var err error
				switch {
				case clearCompleted:
					removed, err = store.ClearCompleted(cmd.Context())
				case clearFailed:
					removed, err = store.ClearFailed(cmd.Context())
				default:
					removed, err = store.Clear(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d runs\n", removed)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed runs")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed runs")
	return cmd
}

func newRunHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show run database health",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(store *run.Store) error {
				out := cmd.OutOrStdout()

				summary, err := store.Health(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Total: %d\nPending: %d\nProcessing: %d\nFailed: %d\nReview: %d\nCompleted: %d\n",
					summary.Total,
					summary.Pending,
					summary.Processing,
					summary.Failed,
					summary.Review,
					summary.Completed,
				)

				health, err := store.CheckHealth(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Database: %s (schema %s, integrity %s)\n",
					health.DBPath, health.SchemaVersion, yesNo(health.IntegrityCheck))
				if health.Error != "" {
					fmt.Fprintf(out, "Database error: %s\n", health.Error)
				}
				return nil
			})
		},
	}
}

func formatProgress(item *run.Run) string {
	if item.ProgressStage == "" {
		return "-"
	}
	return fmt.Sprintf("%s %.0f%%", item.ProgressStage, item.ProgressPercent)
}

func parseRunID(arg string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("invalid run id %q", arg)
	}
	return id, nil
}
