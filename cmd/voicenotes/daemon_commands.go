package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voicenotes/internal/daemonctl"
	"voicenotes/internal/daemonrun"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var runOpts daemonrun.Options
	runE := func(cmd *cobra.Command, args []string) error {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return daemonrun.Run(cmd.Context(), cfg, runOpts)
	}

	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run or control the voicenotes daemon (foreground without a subcommand)",
		RunE:  runE,
	}
	daemonCmd.PersistentFlags().StringVar(&runOpts.LogLevel, "log-level", "", "Override logging.level for this run")
	daemonCmd.PersistentFlags().BoolVar(&runOpts.Development, "verbose", false, "Include source locations in log output")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		RunE:  runE,
	}

	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := daemonController(ctx, runOpts)
			if err != nil {
				return err
			}
			result, err := ctl.Start(cmd.Context(), startWait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			switch {
			case result.AlreadyRunning:
				fmt.Fprintln(out, "Daemon already running")
			case result.PID > 0:
				fmt.Fprintf(out, "Daemon started (pid %d)\n", result.PID)
			default:
				fmt.Fprintln(out, "Daemon started")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			ctl, err := daemonController(ctx, runOpts)
			if err != nil {
				return err
			}
			result, err := ctl.Stop(cmd.Context(), stopGrace)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(out, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.Killed && result.PID > 0 {
				fmt.Fprintf(out, "Daemon did not exit in time; killed pid %d\n", result.PID)
			}
			fmt.Fprintln(out, "Daemon stopped")
			return nil
		},
	}

	restartCmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctl, err := daemonController(ctx, runOpts)
			if err != nil {
				return err
			}
			result, err := ctl.Restart(cmd.Context(), stopGrace, startWait)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.WasRunning {
				fmt.Fprintln(out, "Daemon stopped")
			}
			fmt.Fprintln(out, "Daemon restarted")
			return nil
		},
	}

	daemonCmd.AddCommand(runCmd, startCmd, stopCmd, restartCmd)
	return daemonCmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.configValue())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, snap)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			renderSectionHeader(out, "System", colorize)
			renderLines(out, snap.SystemChecks, colorize)
			fmt.Fprintln(out)

			renderSectionHeader(out, "Dependencies", colorize)
			for _, line := range dependencyLines(snap.Status.Dependencies, snap.DependencySummary, colorize) {
				fmt.Fprintln(out, line)
			}
			fmt.Fprintln(out)

			renderSectionHeader(out, "Paths", colorize)
			renderLines(out, snap.PathChecks, colorize)
			fmt.Fprintln(out)

			if len(snap.Status.Schedule) > 0 {
				renderSectionHeader(out, "Schedule", colorize)
				rows := make([][]string, 0, len(snap.Status.Schedule))
				for _, entry := range snap.Status.Schedule {
					rows = append(rows, []string{entry.Name, entry.Schedule, shortTimestamp(entry.Next)})
				}
				fmt.Fprintln(out, renderTable([]string{"Job", "Schedule", "Next"}, rows, nil))
				fmt.Fprintln(out)
			}

			renderSectionHeader(out, "Queue", colorize)
			if task := snap.Status.Queue.ActiveTask; task != nil {
				fmt.Fprintln(out, renderStatusLine("Active", statusInfo, fmt.Sprintf("%s %s", task.Type, task.TranscriptionID), colorize))
			}
			rows := buildQueueStatusRows(snap.Status.Queue)
			if len(rows) == 0 {
				fmt.Fprintln(out, "Queue is empty")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the status snapshot as JSON")
	return cmd
}

const (
	startWait = 10 * time.Second
	stopGrace = 5 * time.Second
)

func daemonController(ctx *commandContext, runOpts daemonrun.Options) (*daemonctl.Controller, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	launch := daemonctl.LaunchOptions{
		ConfigPath: strings.TrimSpace(ctx.configPath()),
		Verbose:    runOpts.Development,
	}
	ctl := daemonctl.NewController(cfg, exe, launch)
	ctl.Socket = ctx.socketPath()
	return ctl, nil
}
