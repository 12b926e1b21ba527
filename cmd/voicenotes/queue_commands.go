package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"voicenotes/internal/api"
	"voicenotes/internal/queueaccess"
	"voicenotes/internal/textutil"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage background tasks",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show task counts by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				status, err := access.Status(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if status.IsPaused {
					fmt.Fprintln(out, "Queue is paused")
				}
				rows := buildQueueStatusRows(status)
				if len(rows) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				fmt.Fprintln(out, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var statuses []string
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks, highest priority first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				tasks, err := access.List(cmd.Context(), statuses, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, tasks)
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Note", "Type", "Status", "Priority", "Retries", "Created"},
					buildTaskRows(tasks),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&statuses, "status", "s", nil, "Filter by task status (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 100, "Maximum tasks to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <task-id>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				task, err := access.Describe(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, task)
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [task-id...]",
		Short: "Return failed tasks to pending (all failed tasks when no id is given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				updated, err := access.Retry(cmd.Context(), args)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d failed tasks\n", updated)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove finished tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			if !clearFailed {
				clearCompleted = true
			}
			return ctx.withAccess(func(access queueaccess.Access) error {
				var (
					removed int64
					err     error
				)
				if clearFailed {
					removed, err = access.ClearFailed(cmd.Context())
				} else {
					removed, err = access.ClearCompleted(cmd.Context())
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d %s tasks\n", removed, textutil.Pick(clearFailed, "failed", "completed"))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove completed tasks (default)")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove failed tasks")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Return tasks stuck in processing to pending",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				updated, err := access.ResetStuck(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d processing tasks\n", updated)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check database schema and integrity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				health, err := access.Health(cmd.Context())
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := []api.StatusLine{
					{Label: "Database", Severity: textutil.Pick(health.DatabaseReadable, "ok", "error"), Detail: health.DBPath},
					{Label: "Schema", Severity: "info", Detail: fmt.Sprintf("version %d", health.SchemaVersion)},
					{Label: "Integrity", Severity: textutil.Pick(health.IntegrityCheck, "ok", "error"), Detail: textutil.Pick(health.IntegrityCheck, "ok", "failed")},
					{Label: "Records", Severity: "info", Detail: fmt.Sprintf("%d", health.TotalRecords)},
					{Label: "Tasks", Severity: "info", Detail: fmt.Sprintf("%d", health.TotalTasks)},
				}
				if len(health.MissingTables) > 0 {
					lines = append(lines, api.StatusLine{Label: "Missing tables", Severity: "error", Detail: strings.Join(health.MissingTables, ", ")})
				}
				if len(health.MissingColumns) > 0 {
					lines = append(lines, api.StatusLine{Label: "Missing columns", Severity: "error", Detail: strings.Join(health.MissingColumns, ", ")})
				}
				if health.Error != "" {
					lines = append(lines, api.StatusLine{Label: "Error", Severity: "error", Detail: health.Error})
				}
				renderLines(out, lines, colorize)
				return nil
			})
		},
	}
}

func buildTaskRows(tasks []api.Task) [][]string {
	rows := make([][]string, 0, len(tasks))
	for _, task := range tasks {
		retries := fmt.Sprintf("%d/%d", task.RetryCount, task.MaxRetries)
		rows = append(rows, []string{
			shortID(task.ID),
			task.TranscriptionID,
			task.Type,
			task.Status,
			task.Priority,
			retries,
			shortTimestamp(task.CreatedAt),
		})
	}
	return rows
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
