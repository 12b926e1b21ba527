package daemonrun

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/daemon"
	"voicenotes/internal/imports"
	"voicenotes/internal/ipc"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/preflight"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/transcribe"
	"voicenotes/internal/workflow"
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
}

// Run starts the voicenotes daemon and blocks until a signal arrives or the
// daemon is stopped over IPC.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logDir := cfg.LogDir()
	logPath := filepath.Join(logDir, fmt.Sprintf("voicenotes-%s.log", runID))

	logger, err := logging.NewFromConfig(cfg, logPath, logging.Overrides{
		Level:       opts.LogLevel,
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if err := ensureCurrentLogPointer(logDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update voicenotes.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: logDir, Pattern: "voicenotes-*.log", Exclude: []string{logPath}, Keep: 3},
	)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	if removed, err := store.CleanupDuplicates(signalCtx); err != nil {
		logging.WarnWithContext(logger, "duplicate record cleanup failed", "duplicate_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "duplicate records may appear in listings"),
		)
	} else if removed > 0 {
		logger.Info("removed duplicate records",
			logging.String(logging.FieldEventType, "duplicate_cleanup"),
			logging.Int64("removed", removed),
		)
	}

	events := notifications.NewEventBus(cfg.Notifications.EventHistory)
	notifier := notifications.NewMulti(events, notifications.NewService(cfg))

	reconciler := reconcile.New(cfg, store, logger, notifier)
	scanner := imports.NewScanner(cfg, store, logger)
	mgr := workflow.NewManager(cfg, store, logger, notifier)
	mgr.ConfigureHandlers(workflow.HandlerSet{
		Transcriber: transcribe.NewWhisper(cfg.Transcription, logger),
		Syncer:      reconciler,
		Importer:    imports.NewProcessor(cfg, store, logger, notifier),
	})

	d, err := daemon.New(cfg, store, logger, mgr, daemon.Options{
		Reconciler: reconciler,
		Imports:    scanner,
		Events:     events,
		LogPath:    logPath,
	})
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(signalCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer ipcServer.Close()
	ipcServer.Serve()

	if err := d.Start(signalCtx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	logDependencySnapshot(logger, cfg)

	select {
	case <-signalCtx.Done():
	case <-d.Done():
	}
	logger.Info("voicenotes daemon shutting down",
		logging.String(logging.FieldEventType, "daemon_shutdown"),
	)
	d.Stop()
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "voicenotes.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	value := strconv.Itoa(os.Getpid()) + "\n"
	return os.WriteFile(path, []byte(value), 0o644)
}

func logDependencySnapshot(logger *slog.Logger, cfg *config.Config) {
	if logger == nil || cfg == nil {
		return
	}
	attrs := []logging.Attr{
		logging.Bool("ntfy_configured", strings.TrimSpace(cfg.Notifications.NtfyTopic) != ""),
		logging.Bool("watch_enabled", cfg.Sync.Watch),
	}
	missing := 0
	for _, status := range preflight.CheckSystemDeps(cfg) {
		key := strings.ToLower(strings.ReplaceAll(status.Name, " ", "_"))
		attrs = append(attrs,
			logging.Bool(key+"_available", status.Available),
			logging.String(key+"_command", status.Command),
		)
		if status.Version != "" {
			attrs = append(attrs, logging.String(key+"_version", status.Version))
		}
		if !status.Available && !status.Optional {
			missing++
		}
	}
	if missing > 0 {
		logging.WarnWithContext(logger, "transcription dependencies missing", "dependency_missing",
			append(attrs,
				logging.Int("missing_required", missing),
				logging.String(logging.FieldErrorHint, "run `voicenotes status` for details"),
				logging.String(logging.FieldImpact, "transcription tasks will fail until dependencies are installed"),
			)...,
		)
		return
	}
	attrs = append(attrs, logging.String(logging.FieldEventType, "dependency_snapshot"))
	logger.Info("dependency snapshot", logging.Args(attrs...)...)
}
