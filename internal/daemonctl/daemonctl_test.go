package daemonctl

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"voicenotes/internal/api"
	"voicenotes/internal/queue"
	"voicenotes/internal/testsupport"
)

func TestBuildDependencySummary(t *testing.T) {
	summary := BuildDependencySummary(nil)
	if summary.Severity != "info" {
		t.Fatalf("expected info severity for empty deps, got %+v", summary)
	}

	summary = BuildDependencySummary([]api.DependencyStatus{
		{Name: "Whisper", Available: true},
		{Name: "FFmpeg", Optional: true},
	})
	if summary.Severity != "warn" || summary.Available != 1 || summary.MissingOptional != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	summary = BuildDependencySummary([]api.DependencyStatus{{Name: "Whisper"}})
	if summary.Severity != "error" || summary.MissingRequired != 1 {
		t.Fatalf("expected required dependency error, got %+v", summary)
	}
}

func TestBuildSystemChecks(t *testing.T) {
	cfg := testsupport.NewConfig(t)

	lines := BuildSystemChecks(cfg, api.DaemonStatus{})
	if lines[0].Label != "Daemon" || lines[0].Severity != "warn" {
		t.Fatalf("expected daemon warning when offline, got %+v", lines[0])
	}

	lines = BuildSystemChecks(cfg, api.DaemonStatus{
		Running:  true,
		PID:      42,
		Watching: true,
		Queue:    api.QueueStatus{IsPaused: true},
	})
	details := map[string]string{}
	for _, line := range lines {
		details[line.Label] = line.Severity + ":" + line.Detail
	}
	if details["Daemon"] != "ok:Running (pid 42)" {
		t.Fatalf("unexpected daemon line %q", details["Daemon"])
	}
	if details["Transcription"] != "warn:Paused" {
		t.Fatalf("unexpected transcription line %q", details["Transcription"])
	}
	if !strings.HasPrefix(details["Watcher"], "ok:") {
		t.Fatalf("unexpected watcher line %q", details["Watcher"])
	}
	if details["Notifications"] != "info:Not configured" {
		t.Fatalf("unexpected notifications line %q", details["Notifications"])
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.Enqueue(t, store, "20250101010101", queue.TranscribeOrphan{AudioPath: "2025/2025-01-01/010101.wav"}, queue.PriorityNormal, 2)

	snap, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Online {
		t.Fatal("expected offline snapshot without a daemon")
	}
	if snap.Status.Queue.Pending != 1 {
		t.Fatalf("expected pending count from store, got %+v", snap.Status.Queue)
	}
	if snap.Status.DatabasePath != cfg.DatabasePath() {
		t.Fatalf("unexpected database path %q", snap.Status.DatabasePath)
	}
	if len(snap.Status.Dependencies) == 0 || snap.DependencySummary.Total != len(snap.Status.Dependencies) {
		t.Fatalf("expected dependency checks, got %+v", snap.DependencySummary)
	}
	for _, line := range snap.PathChecks {
		if line.Severity != "ok" {
			t.Fatalf("expected test directories to be accessible, got %+v", line)
		}
	}
}

func TestKillRefusesWithoutUsablePID(t *testing.T) {
	dir := t.TempDir()
	ctl := &Controller{PIDPath: filepath.Join(dir, "voicenotes.pid")}
	if _, err := ctl.kill(0); err == nil {
		t.Fatal("expected error without pid")
	}

	if err := os.WriteFile(ctl.PIDPath, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ctl.kill(0); err == nil {
		t.Fatal("expected refusal to kill the current process")
	}
}

func TestReadPIDIgnoresGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicenotes.pid")
	if err := os.WriteFile(path, []byte("not-a-pid\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if pid, err := readPID(path); err != nil || pid != 0 {
		t.Fatalf("expected zero pid, got %d, %v", pid, err)
	}
	if _, err := readPID(path + ".missing"); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestLockHeldDetectsOtherHolder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voicenotes.lock")
	if lockHeld(path) {
		t.Fatal("missing lock file must not count as held")
	}
	holder := flock.New(path)
	ok, err := holder.TryLock()
	if err != nil || !ok {
		t.Fatalf("TryLock: %v, %v", ok, err)
	}
	if !lockHeld(path) {
		t.Fatal("expected lock to be reported held")
	}
	if err := holder.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if lockHeld(path) {
		t.Fatal("expected released lock to be free")
	}
}

func TestControllerWithoutDaemon(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctl := NewController(cfg, "", LaunchOptions{})
	probe, err := ctl.Probe()
	if err != nil || probe.Running() || probe.PID != 0 {
		t.Fatalf("expected no daemon, got %+v, %v", probe, err)
	}
	if _, err := ctl.Stop(context.Background(), 0); !errors.Is(err, ErrDaemonNotRunning) {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
	if _, err := ctl.Start(context.Background(), time.Millisecond); err == nil {
		t.Fatal("expected error for empty executable")
	}
}

func TestLaunchArgs(t *testing.T) {
	got := LaunchOptions{ConfigPath: " /etc/vn.toml ", Verbose: true}.args()
	want := []string{"daemon", "run", "--config", "/etc/vn.toml", "--verbose"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("args = %v, want %v", got, want)
	}
}
