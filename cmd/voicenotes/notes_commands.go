package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"voicenotes/internal/api"
	"voicenotes/internal/queueaccess"
)

func newNotesCommand(ctx *commandContext) *cobra.Command {
	notesCmd := &cobra.Command{
		Use:     "notes",
		Aliases: []string{"records"},
		Short:   "Browse and search transcribed notes",
	}
	notesCmd.AddCommand(newNotesListCommand(ctx))
	notesCmd.AddCommand(newNotesShowCommand(ctx))
	notesCmd.AddCommand(newNotesSearchCommand(ctx))
	notesCmd.AddCommand(newNotesStatsCommand(ctx))
	return notesCmd
}

func newNotesListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit, offset int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				records, err := access.Records(cmd.Context(), status, limit, offset)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No notes found")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecordTable(records, false))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Filter by status (pending, processing, complete, failed, orphaned)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "Maximum notes to list")
	cmd.Flags().IntVar(&offset, "offset", 0, "Skip this many notes")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print notes as JSON")
	return cmd
}

func newNotesShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one note and its transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				rec, err := access.Record(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, rec)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "ID:        %s\n", rec.ID)
				fmt.Fprintf(out, "Audio:     %s\n", rec.AudioPath)
				fmt.Fprintf(out, "Status:    %s\n", rec.Status)
				fmt.Fprintf(out, "Source:    %s\n", rec.Source)
				fmt.Fprintf(out, "Created:   %s\n", shortTimestamp(rec.CreatedAt))
				if rec.TranscribedAt != "" {
					fmt.Fprintf(out, "Done:      %s\n", shortTimestamp(rec.TranscribedAt))
				}
				if rec.DurationSeconds > 0 {
					fmt.Fprintf(out, "Duration:  %s\n", formatSeconds(rec.DurationSeconds))
				}
				if rec.Missing {
					fmt.Fprintln(out, "Missing:   audio file no longer on disk")
				}
				if rec.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", rec.ErrorMessage)
				}
				if strings.TrimSpace(rec.Text) != "" {
					fmt.Fprintln(out)
					fmt.Fprintln(out, rec.Text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the note as JSON")
	return cmd
}

func newNotesSearchCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search transcripts, best matches first",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return ctx.withAccess(func(access queueaccess.Access) error {
				records, err := access.Search(cmd.Context(), query, limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, records)
				}
				if len(records) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No notes match %q\n", query)
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderRecordTable(records, true))
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum matches")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print matches as JSON")
	return cmd
}

func newNotesStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize notes by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withAccess(func(access queueaccess.Access) error {
				stats, err := access.RecordStats(cmd.Context())
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Total", fmt.Sprintf("%d", stats.Total)},
				}
				for _, status := range []string{"complete", "pending", "processing", "failed", "orphaned"} {
					if count := stats.ByStatus[status]; count > 0 {
						rows = append(rows, []string{titleCase(status), fmt.Sprintf("%d", count)})
					}
				}
				rows = append(rows,
					[]string{"Missing", fmt.Sprintf("%d", stats.Missing)},
					[]string{"Audio", formatSeconds(stats.TotalSeconds)},
					[]string{"Size", formatBytes(stats.TotalBytes)},
				)
				if stats.OldestCreatedAt != "" {
					rows = append(rows, []string{"Oldest", shortTimestamp(stats.OldestCreatedAt)})
				}
				if stats.NewestCreatedAt != "" {
					rows = append(rows, []string{"Newest", shortTimestamp(stats.NewestCreatedAt)})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Notes", "Value"}, rows, []columnAlignment{alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func renderRecordTable(records []api.Record, withScore bool) string {
	headers := []string{"ID", "Status", "Duration", "Text"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignLeft}
	if withScore {
		headers = append(headers, "Score")
		aligns = append(aligns, alignRight)
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		text := rec.Text
		if strings.TrimSpace(text) == "" {
			text = rec.AudioPath
		}
		row := []string{rec.ID, rec.Status, formatSeconds(rec.DurationSeconds), truncate(text, 60)}
		if withScore {
			row = append(row, fmt.Sprintf("%.3f", rec.Score))
		}
		rows = append(rows, row)
	}
	return renderTable(headers, rows, aligns)
}

func formatSeconds(seconds float64) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds*float64(time.Second)) / time.Second * time.Second).String()
}

func formatBytes(n int64) string {
	if n < 0 {
		n = 0
	}
	return humanize.IBytes(uint64(n))
}
