package main

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"seebeck/internal/daemon"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Control the seebeck daemon",
	}

	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonStatusCommand(ctx))

	return daemonCmd
}

func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the seebeck daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if status, err := ctx.daemonStatus(); err == nil && status != nil {
				fmt.Fprintln(out, "Daemon already running")
				return nil
			}

			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			daemonArgs := []string{}
			if ctx.configFlag != nil {
				if path := strings.TrimSpace(*ctx.configFlag); path != "" {
					daemonArgs = append(daemonArgs, "-config", path)
				}
			}
			launch := exec.Command(exe, daemonArgs...)
			launch.Stdout = nil
			launch.Stderr = nil
			launch.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := launch.Start(); err != nil {
				return fmt.Errorf("launch %s: %w", exe, err)
			}
			// Detach; the daemon reparents under init.
			if err := launch.Process.Release(); err != nil {
				return fmt.Errorf("release daemon process: %w", err)
			}

			fmt.Fprintln(out, "Daemon not running, launching...")
			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				if status, err := ctx.daemonStatus(); err == nil && status != nil {
					fmt.Fprintln(out, "Daemon started")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return errors.New("daemon did not come up within 10s (check the log file)")
		},
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the seebeck daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			pid, err := readPIDFile(daemon.PIDFilePath(cfg))
			if err != nil {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err := syscall.Kill(pid, syscall.SIGTERM); err != nil {
				if errors.Is(err, syscall.ESRCH) {
					fmt.Fprintln(out, "Daemon is not running (stale pid file)")
					return nil
				}
				return fmt.Errorf("signal daemon (pid %d): %w", pid, err)
			}

			deadline := time.Now().Add(10 * time.Second)
			for time.Now().Before(deadline) {
				if err := syscall.Kill(pid, 0); errors.Is(err, syscall.ESRCH) {
					fmt.Fprintln(out, "Daemon stopped")
					return nil
				}
				time.Sleep(200 * time.Millisecond)
			}
			return fmt.Errorf("daemon (pid %d) did not exit within 10s", pid)
		},
	}
}

func newDaemonStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			status, err := ctx.daemonStatus()
			if err != nil {
				return err
			}
			if status == nil {
				fmt.Fprintln(out, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				return nil
			}

			fmt.Fprintln(out, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize))
			fmt.Fprintln(out, renderStatusLine("Instrument", statusInfo, status.Instrument, colorize))
			fmt.Fprintln(out, renderStatusLine("Database", statusInfo, status.RunDBPath, colorize))
			for _, health := range status.Workflow.StageHealth {
				kind := statusError
				if health.Ready {
					kind = statusOK
				}
				fmt.Fprintln(out, renderStatusLine("Stage "+health.Name, kind, health.Detail, colorize))
			}

			rows := make([][]string, 0, len(status.Workflow.RunStats))
			for statusName, count := range status.Workflow.RunStats {
				rows = append(rows, []string{statusName, strconv.Itoa(count)})
			}
			if len(rows) > 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			}
			return nil
		},
	}
}

// daemonExecutable locates the seebeckd binary: next to the CLI first, then
// on PATH.
func daemonExecutable() (string, error) {
	if exe, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exe), "seebeckd")
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling, nil
		}
	}
	exe, err := exec.LookPath("seebeckd")
	if err != nil {
		return "", errors.New("seebeckd binary not found next to seebeck or on PATH")
	}
	return exe, nil
}

func readPIDFile(path string) (int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(content)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid file %s", path)
	}
	return pid, nil
}
