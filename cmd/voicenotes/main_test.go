package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicenotes/internal/config"
	"voicenotes/internal/daemon"
	"voicenotes/internal/imports"
	"voicenotes/internal/ipc"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/testsupport"
	"voicenotes/internal/workflow"
)

type cliTestEnv struct {
	cfg        *config.Config
	store      *queue.Store
	socketPath string
	configPath string
}

func newTestConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Sync.InitialDelaySeconds = 3600
	cfg.Sync.Watch = false

	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfg, configPath
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg, configPath := newTestConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	logger := logging.NewNop()
	events := notifications.NewEventBus(64)
	reconciler := reconcile.New(cfg, store, logger, events)
	mgr := workflow.NewManager(cfg, store, logger, events)
	mgr.ConfigureHandlers(workflow.HandlerSet{Syncer: reconciler})
	mgr.Pause()

	d, err := daemon.New(cfg, store, logger, mgr, daemon.Options{
		Reconciler: reconciler,
		Imports:    imports.NewScanner(cfg, store, logger),
		Events:     events,
		LogPath:    filepath.Join(cfg.LogDir(), "cli-test.log"),
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socketPath := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socketPath, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI IPC test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)

	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected output to contain %q, got:\n%s", substr, output)
	}
}

func TestCLIControlCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Running (pid")
	requireContains(t, out, "Paused")

	out, _, err = runCLI(t, []string{"resume"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	requireContains(t, out, "Queue resumed")

	out, _, err = runCLI(t, []string{"recording", "on"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("recording on: %v", err)
	}
	requireContains(t, out, "Recording active")
	if _, _, err := runCLI(t, []string{"recording", "maybe"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for invalid recording argument")
	}

	out, _, err = runCLI(t, []string{"pause"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	requireContains(t, out, "Queue paused")

	out, _, err = runCLI(t, []string{"test-notify"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "ntfy topic not configured")
}

func TestCLITranscribeAndQueue(t *testing.T) {
	env := setupCLITestEnv(t)
	audio := filepath.Join(env.cfg.Paths.NotesDir, "2025", "2025-04-02", "093000.wav")
	testsupport.WriteWAV(t, audio, 8000, 0.2)

	out, _, err := runCLI(t, []string{"transcribe", audio}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	requireContains(t, out, "Queued 20250402093000")
	requireContains(t, out, "priority high")

	out, _, err = runCLI(t, []string{"queue", "list"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue list: %v", err)
	}
	requireContains(t, out, "20250402093000")

	out, _, err = runCLI(t, []string{"queue", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue status: %v", err)
	}
	requireContains(t, out, "Pending")

	ctx := context.Background()
	claimed, err := env.store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := env.store.FailAttempt(ctx, claimed.ID, "whisper crashed", false); err != nil {
		t.Fatalf("FailAttempt: %v", err)
	}

	out, _, err = runCLI(t, []string{"queue", "retry", claimed.ID}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue retry: %v", err)
	}
	requireContains(t, out, "Retried 1 failed tasks")

	out, _, err = runCLI(t, []string{"queue", "clear", "--failed"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue clear: %v", err)
	}
	requireContains(t, out, "Cleared 0 failed tasks")
	if _, _, err := runCLI(t, []string{"queue", "clear", "--failed", "--completed"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error for conflicting clear flags")
	}

	out, _, err = runCLI(t, []string{"queue", "health"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("queue health: %v", err)
	}
	requireContains(t, out, "Integrity")
}

func TestCLISyncNotesAndEvents(t *testing.T) {
	env := setupCLITestEnv(t)
	day := filepath.Join(env.cfg.Paths.NotesDir, "2025", "2025-05-10")
	testsupport.WriteWAV(t, filepath.Join(day, "071500.wav"), 8000, 0.2)
	testsupport.WriteText(t, filepath.Join(day, "071500.txt"), "book the dentist for next tuesday")
	testsupport.WriteWAV(t, filepath.Join(day, "081500.wav"), 8000, 0.2)

	out, _, err := runCLI(t, []string{"sync"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	requireContains(t, out, "Enqueued")

	out, _, err = runCLI(t, []string{"notes", "list", "--status", "complete"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("notes list: %v", err)
	}
	requireContains(t, out, "20250510071500")

	out, _, err = runCLI(t, []string{"notes", "show", "20250510071500"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("notes show: %v", err)
	}
	requireContains(t, out, "book the dentist for next tuesday")

	out, _, err = runCLI(t, []string{"notes", "search", "dentist"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("notes search: %v", err)
	}
	requireContains(t, out, "20250510071500")

	out, _, err = runCLI(t, []string{"notes", "stats"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("notes stats: %v", err)
	}
	requireContains(t, out, "Complete")

	out, _, err = runCLI(t, []string{"events"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	requireContains(t, out, "sync_complete")

	if _, _, err := runCLI(t, []string{"events", "--remote"}, env.socketPath, env.configPath); err == nil {
		t.Fatal("expected error when api.bind is not configured")
	}
}

func TestCLIOfflineFallback(t *testing.T) {
	cfg, configPath := newTestConfig(t)
	socket := filepath.Join(testsupport.BaseDir(cfg), "absent.sock")
	day := filepath.Join(cfg.Paths.NotesDir, "2025", "2025-08-20")
	testsupport.WriteWAV(t, filepath.Join(day, "200000.wav"), 8000, 0.2)

	if _, _, err := runCLI(t, []string{"pause"}, socket, configPath); err == nil {
		t.Fatal("expected pause to fail without a daemon")
	}

	out, _, err := runCLI(t, []string{"sync", "--offline"}, socket, configPath)
	if err != nil {
		t.Fatalf("sync --offline: %v", err)
	}
	requireContains(t, out, "Scanned")

	out, _, err = runCLI(t, []string{"queue", "list", "--status", "pending"}, socket, configPath)
	if err != nil {
		t.Fatalf("queue list offline: %v", err)
	}
	requireContains(t, out, "20250820200000")

	out, _, err = runCLI(t, []string{"notes", "list"}, socket, configPath)
	if err != nil {
		t.Fatalf("notes list offline: %v", err)
	}
	requireContains(t, out, "20250820200000")

	out, _, err = runCLI(t, []string{"status"}, socket, configPath)
	if err != nil {
		t.Fatalf("status offline: %v", err)
	}
	requireContains(t, out, "Not running")

	logPath := filepath.Join(cfg.LogDir(), "voicenotes.log")
	if err := os.WriteFile(logPath, []byte("one\ntwo\nthree\n"), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	out, _, err = runCLI(t, []string{"logs", "-n", "2"}, socket, configPath)
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if strings.Contains(out, "one") || !strings.Contains(out, "two\nthree") {
		t.Fatalf("unexpected log output %q", out)
	}
}

func TestConfigInitShowAndValidate(t *testing.T) {
	_, configPath := newTestConfig(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, "", configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")

	out, _, err = runCLI(t, []string{"config", "show"}, "", configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "notes_dir")

	target := filepath.Join(t.TempDir(), "voicenotes.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "", "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, "", ""); err == nil {
		t.Fatal("expected error when config already exists")
	}
}
