package testsupport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"voicenotes/internal/config"
)

// ConfigOption adjusts a test config before its directories are created.
// base is the per-test temp root.
type ConfigOption func(t testing.TB, base string, cfg *config.Config)

// NewConfig returns a config whose notes, imports and state live under a
// fresh temp dir, with worker loops tuned to settle within milliseconds.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.NotesDir = filepath.Join(base, "notes")
	cfg.Paths.ImportsDir = filepath.Join(base, "imports")
	cfg.Paths.StateDir = filepath.Join(base, "state")
	cfg.Transcription.ModelPath = filepath.Join(base, "models", "ggml-base.en.bin")

	cfg.Workflow.PollIntervalMillis = 10
	cfg.Workflow.PausedIntervalMillis = 10
	cfg.Workflow.BusyIntervalMillis = 10
	cfg.Workflow.ErrorRetryInterval = 1
	cfg.Sync.InitialDelaySeconds = 0
	cfg.Sync.WatchDebounceMillis = 20

	for _, opt := range opts {
		opt(t, base, &cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure test directories: %v", err)
	}
	return &cfg
}

// WithStubbedBinaries puts no-op executables for names first on PATH for the
// rest of the test. With no names it stubs whisper and ffmpeg as configured.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(t testing.TB, base string, cfg *config.Config) {
		t.Helper()
		if len(names) == 0 {
			names = []string{cfg.Transcription.WhisperBinary, cfg.Transcription.FFmpegBinary}
		}
		binDir := filepath.Join(base, "bin")
		for _, name := range names {
			WriteExecutable(t, filepath.Join(binDir, name), "exit 0")
		}
		path := binDir
		if current := os.Getenv("PATH"); current != "" {
			path = strings.Join([]string{binDir, current}, string(os.PathListSeparator))
		}
		t.Setenv("PATH", path)
	}
}

// WriteExecutable writes a /bin/sh script with the given body.
func WriteExecutable(t testing.TB, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("write executable %s: %v", path, err)
	}
}

// BaseDir returns the temp root behind a config from NewConfig.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
