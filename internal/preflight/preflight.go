package preflight

import (
	"context"
	"fmt"
	"strings"

	"voicenotes/internal/config"
	"voicenotes/internal/deps"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Notes directory", cfg.Paths.NotesDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Imports directory", cfg.PendingImportsDir()),
	}
	for _, status := range CheckSystemDeps(cfg) {
		results = append(results, fromStatus(status))
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		results = append(results, CheckNtfy(ctx, cfg.Notifications.NtfyTopic))
	}
	return results
}

func fromStatus(status deps.Status) Result {
	if status.Available {
		var notes []string
		if status.Version != "" {
			notes = append(notes, status.Version)
		}
		if status.Description != "" {
			notes = append(notes, status.Description)
		}
		detail := status.Command
		if len(notes) > 0 {
			detail = fmt.Sprintf("%s (%s)", status.Command, strings.Join(notes, "; "))
		}
		return Result{Name: status.Name, Passed: true, Detail: detail}
	}
	return Result{Name: status.Name, Detail: status.Detail}
}
