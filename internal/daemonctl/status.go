package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"voicenotes/internal/api"
	"voicenotes/internal/config"
	"voicenotes/internal/ipc"
	"voicenotes/internal/preflight"
	"voicenotes/internal/queue"
)

// Severity labels used on status lines.
const (
	severityOK    = "ok"
	severityInfo  = "info"
	severityWarn  = "warn"
	severityError = "error"
)

// Snapshot is what `voicenotes status` prints. Offline, the queue counts
// come straight from the database.
type Snapshot struct {
	Online            bool
	Status            api.DaemonStatus
	SystemChecks      []api.StatusLine
	PathChecks        []api.StatusLine
	DependencySummary api.DependencySummary
}

// BuildStatusSnapshot asks the daemon for its status and fills the gaps
// locally when it does not answer.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (Snapshot, error) {
	if cfg == nil {
		return Snapshot{}, errors.New("configuration not available")
	}
	var snap Snapshot
	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		resp, statusErr := client.Status()
		_ = client.Close()
		if statusErr == nil {
			snap.Online = true
			snap.Status = *resp
		}
	}
	if !snap.Online {
		snap.Status = offlineStatus(ctx, cfg)
	}
	if len(snap.Status.Dependencies) == 0 {
		snap.Status.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(cfg))
	}

	snap.SystemChecks = BuildSystemChecks(cfg, snap.Status)
	if !snap.Online && lockHeld(cfg.LockPath()) {
		snap.SystemChecks[0] = api.StatusLine{Label: "Daemon", Severity: severityError, Detail: "Lock held but socket not answering (try `voicenotes daemon stop`)"}
	}
	snap.PathChecks = BuildPathChecks(cfg)
	snap.DependencySummary = BuildDependencySummary(snap.Status.Dependencies)
	return snap, nil
}

func offlineStatus(ctx context.Context, cfg *config.Config) api.DaemonStatus {
	status := api.DaemonStatus{
		DatabasePath: cfg.DatabasePath(),
		LockFilePath: cfg.LockPath(),
		NotesDir:     cfg.Paths.NotesDir,
	}
	if _, err := os.Stat(status.DatabasePath); err != nil {
		return status
	}
	store, err := queue.OpenPath(status.DatabasePath)
	if err != nil {
		return status
	}
	defer store.Close()

	countCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if counts, err := store.Counts(countCtx); err == nil {
		status.Queue = api.FromQueueCounts(counts)
	}
	return status
}

func line(label, severity, detail string) api.StatusLine {
	return api.StatusLine{Label: label, Severity: severity, Detail: detail}
}

// BuildSystemChecks turns daemon state and config into status lines. The
// daemon line is always first.
func BuildSystemChecks(cfg *config.Config, status api.DaemonStatus) []api.StatusLine {
	var lines []api.StatusLine
	if status.Running {
		lines = append(lines, line("Daemon", severityOK, fmt.Sprintf("Running (pid %d)", status.PID)))
		lines = append(lines, transcriptionLine(status.Queue), watcherLine(cfg, status.Watching))
	} else {
		lines = append(lines, line("Daemon", severityWarn, "Not running (run `voicenotes daemon start`)"))
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		lines = append(lines, line("Notifications", severityInfo, "Not configured"))
	} else {
		lines = append(lines, line("Notifications", severityOK, "Configured"))
	}
	if bind := strings.TrimSpace(cfg.API.Bind); bind != "" {
		lines = append(lines, line("HTTP API", severityOK, bind))
	}
	return lines
}

func transcriptionLine(q api.QueueStatus) api.StatusLine {
	switch {
	case q.IsRecording:
		return line("Transcription", severityInfo, "Deferred while recording")
	case q.IsPaused:
		return line("Transcription", severityWarn, "Paused")
	default:
		return line("Transcription", severityOK, "Active")
	}
}

func watcherLine(cfg *config.Config, watching bool) api.StatusLine {
	switch {
	case watching:
		return line("Watcher", severityOK, "Watching notes folder")
	case cfg.Sync.Watch:
		return line("Watcher", severityWarn, "Unavailable (scheduled sync only)")
	default:
		return line("Watcher", severityInfo, "Disabled")
	}
}

// BuildPathChecks verifies each configured directory is usable.
func BuildPathChecks(cfg *config.Config) []api.StatusLine {
	checks := []preflight.Result{
		preflight.CheckDirectoryAccess("Notes", cfg.Paths.NotesDir),
		preflight.CheckDirectoryAccess("Imports", cfg.PendingImportsDir()),
		preflight.CheckDirectoryAccess("State", cfg.Paths.StateDir),
	}
	lines := make([]api.StatusLine, len(checks))
	for i, res := range checks {
		severity := severityError
		if res.Passed {
			severity = severityOK
		}
		lines[i] = line(res.Name, severity, res.Detail)
	}
	return lines
}

// BuildDependencySummary rolls dependency checks into one line. Missing
// required tools are errors; missing optional ones are warnings.
func BuildDependencySummary(deps []api.DependencyStatus) api.DependencySummary {
	summary := api.DependencySummary{Total: len(deps)}
	if summary.Total == 0 {
		summary.Severity = severityInfo
		summary.Detail = "No dependency checks configured"
		return summary
	}
	for _, dep := range deps {
		switch {
		case dep.Available:
			summary.Available++
		case dep.Optional:
			summary.MissingOptional++
		default:
			summary.MissingRequired++
		}
	}

	summary.Severity = severityOK
	summary.Detail = fmt.Sprintf("%d/%d available", summary.Available, summary.Total)
	if summary.MissingRequired+summary.MissingOptional == 0 {
		return summary
	}
	summary.Severity = severityWarn
	if summary.MissingRequired > 0 {
		summary.Severity = severityError
	}
	summary.Detail += fmt.Sprintf(" (missing: %d required, %d optional)", summary.MissingRequired, summary.MissingOptional)
	return summary
}
