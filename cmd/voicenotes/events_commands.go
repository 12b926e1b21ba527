package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"voicenotes/internal/api"
	"voicenotes/internal/ipc"
	"voicenotes/internal/logs"
)

const followPollInterval = time.Second

func newEventsCommand(ctx *commandContext) *cobra.Command {
	var since int64
	var follow bool
	var remote bool

	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print daemon events (task progress, sync results)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fetch, closeFn, err := eventFetcher(ctx, remote)
			if err != nil {
				return err
			}
			defer closeFn()

			out := cmd.OutOrStdout()
			cursor := since
			for {
				page, err := fetch(cmd.Context(), cursor)
				if err != nil {
					return err
				}
				for _, ev := range page.Events {
					fmt.Fprintln(out, formatEvent(ev))
				}
				cursor = page.Next
				if !follow {
					return nil
				}
				select {
				case <-cmd.Context().Done():
					return nil
				case <-time.After(followPollInterval):
				}
			}
		},
	}
	cmd.Flags().Int64Var(&since, "since", 0, "Only print events after this sequence number")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep polling for new events")
	cmd.Flags().BoolVar(&remote, "remote", false, "Read events from the HTTP API (api.bind) instead of the socket")
	return cmd
}

type fetchEvents func(ctx context.Context, since int64) (logs.EventPage, error)

func eventFetcher(ctx *commandContext, remote bool) (fetchEvents, func(), error) {
	if remote {
		cfg, err := ctx.ensureConfig()
		if err != nil {
			return nil, nil, err
		}
		client, err := logs.NewEventClient(cfg.API.Bind, cfg.API.Token)
		if err != nil {
			return nil, nil, err
		}
		if client == nil {
			return nil, nil, errors.New("api.bind is not configured; the HTTP API is disabled")
		}
		bind := cfg.API.Bind
		fetch := func(fetchCtx context.Context, since int64) (logs.EventPage, error) {
			page, err := client.Fetch(fetchCtx, since)
			if logs.IsAPIUnavailable(err) {
				return logs.EventPage{}, fmt.Errorf("HTTP API unreachable at %s (is the daemon running?): %w", bind, err)
			}
			return page, err
		}
		return fetch, func() {}, nil
	}

	client, err := ctx.dialClient()
	if err != nil {
		return nil, nil, err
	}
	fetch := func(_ context.Context, since int64) (logs.EventPage, error) {
		resp, err := client.Events(since)
		if err != nil {
			return logs.EventPage{}, err
		}
		return logs.EventPage{Events: resp.Events, Next: resp.Next}, nil
	}
	return fetch, func() { client.Close() }, nil
}

func formatEvent(ev api.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d  %s  %s", ev.Seq, shortTimestamp(ev.Timestamp), ev.Event)
	keys := make([]string, 0, len(ev.Payload))
	for key := range ev.Payload {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, " %s=%v", key, ev.Payload[key])
	}
	return b.String()
}

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var filter logs.Filter

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				cfg, cfgErr := ctx.ensureConfig()
				if cfgErr != nil {
					return cfgErr
				}
				return tailLocalLog(cmd.Context(), out, filepath.Join(cfg.LogDir(), "voicenotes.log"), lines, follow, filter)
			}
			defer client.Close()

			req := ipc.LogTailRequest{
				Offset:          -1,
				Limit:           lines,
				Level:           filter.MinLevel,
				TaskID:          filter.TaskID,
				TranscriptionID: filter.TranscriptionID,
			}
			for {
				resp, err := client.LogTail(req)
				if err != nil {
					return err
				}
				for _, line := range resp.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}
				req.Offset = resp.Offset
				req.Limit = 0
				req.Follow = true
				req.WaitMillis = 1000
			}
		},
	}
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines")
	cmd.Flags().StringVar(&filter.MinLevel, "level", "", "Only show JSON lines at or above this level (debug, info, warn, error)")
	cmd.Flags().StringVar(&filter.TaskID, "task", "", "Only show lines for this task id")
	cmd.Flags().StringVar(&filter.TranscriptionID, "note", "", "Only show lines for this note id")
	return cmd
}

func tailLocalLog(ctx context.Context, out io.Writer, path string, lines int, follow bool, filter logs.Filter) error {
	opts := logs.TailOptions{Offset: -1, Limit: lines, Filter: filter}
	for {
		result, err := logs.Tail(ctx, path, opts)
		if err != nil {
			return err
		}
		for _, line := range result.Lines {
			fmt.Fprintln(out, line)
		}
		if !follow || ctx.Err() != nil {
			return nil
		}
		opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: time.Second, Filter: filter}
	}
}
