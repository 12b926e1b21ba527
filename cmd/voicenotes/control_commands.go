package main

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"voicenotes/internal/api"
	"voicenotes/internal/config"
	"voicenotes/internal/ipc"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
)

func newControlCommands(ctx *commandContext) []*cobra.Command {
	pauseCmd := &cobra.Command{
		Use:   "pause",
		Short: "Stop claiming new tasks (in-flight work finishes)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SetPaused(true); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue paused")
				return nil
			})
		},
	}

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Resume claiming tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.SetPaused(false); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue resumed")
				return nil
			})
		},
	}

	recordingCmd := &cobra.Command{
		Use:       "recording on|off",
		Short:     "Mark live recording active so transcription waits",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			var active bool
			switch strings.ToLower(strings.TrimSpace(args[0])) {
			case "on", "true", "1":
				active = true
			case "off", "false", "0":
				active = false
			default:
				return fmt.Errorf("recording: expected on or off, got %q", args[0])
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.SetRecording(active)
				if err != nil {
					return err
				}
				if resp.Active {
					fmt.Fprintln(cmd.OutOrStdout(), "Recording active; transcription deferred")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "Recording inactive")
				}
				return nil
			})
		},
	}

	transcribeCmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Queue an audio file under the notes folder at high priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			if abs, absErr := filepath.Abs(path); absErr == nil {
				path = abs
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Transcribe(path)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if resp.Task == nil {
					fmt.Fprintln(out, "Already transcribed; nothing queued")
					return nil
				}
				fmt.Fprintf(out, "Queued %s (task %s, priority %s)\n", resp.Task.TranscriptionID, resp.Task.ID, resp.Task.Priority)
				return nil
			})
		},
	}

	var offline bool
	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Reconcile the notes folder with the database now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if offline {
				report, err := runOfflineSync(cmd, ctx)
				if err != nil {
					return err
				}
				printSyncReport(out, report)
				return nil
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sync()
				if err != nil {
					return err
				}
				if resp.Queued {
					fmt.Fprintln(out, "Sync task queued")
					return nil
				}
				printSyncReport(out, resp.Report)
				return nil
			})
		},
	}
	syncCmd.Flags().BoolVar(&offline, "offline", false, "Reconcile directly against the database without the daemon")

	importsCmd := &cobra.Command{
		Use:   "imports",
		Short: "Manage files waiting in the imports folder",
	}
	importsCmd.AddCommand(&cobra.Command{
		Use:   "scan",
		Short: "Queue every pending import now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.ImportScan()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Queued %d imports\n", resp.Queued)
				return nil
			})
		},
	})

	return []*cobra.Command{pauseCmd, resumeCmd, recordingCmd, transcribeCmd, syncCmd, importsCmd}
}

func runOfflineSync(cmd *cobra.Command, ctx *commandContext) (api.SyncReport, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return api.SyncReport{}, err
	}
	if client, dialErr := ipc.Dial(ctx.socketPath()); dialErr == nil {
		_ = client.Close()
		return api.SyncReport{}, errors.New("daemon is running; use `voicenotes sync` without --offline")
	}
	store, err := queue.Open(cfg)
	if err != nil {
		return api.SyncReport{}, err
	}
	defer store.Close()

	logger, err := logging.New(logging.Options{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return api.SyncReport{}, err
	}
	report, err := reconcile.New(cfg, store, logger, nil).Reconcile(cmd.Context())
	return api.FromSyncReport(report), err
}

func printSyncReport(out io.Writer, report api.SyncReport) {
	rows := [][]string{
		{"Scanned", fmt.Sprintf("%d", report.Scanned)},
		{"New", fmt.Sprintf("%d", report.New)},
		{"Updated", fmt.Sprintf("%d", report.Updated)},
		{"Missing", fmt.Sprintf("%d", report.Missing)},
		{"Enqueued", fmt.Sprintf("%d", report.Enqueued)},
	}
	fmt.Fprintln(out, renderTable([]string{"Sync", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, msg := range report.Errors {
		fmt.Fprintf(out, "error: %s\n", msg)
	}
}

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.TestNotification()
				if err != nil {
					return err
				}
				switch {
				case resp.Message != "":
					fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
				case resp.Sent:
					fmt.Fprintln(cmd.OutOrStdout(), "Test notification sent")
				default:
					fmt.Fprintln(cmd.OutOrStdout(), "Notification not sent")
				}
				return nil
			})
		},
	}
}
