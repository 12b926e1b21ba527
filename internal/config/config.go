package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	NotesDir   string `toml:"notes_dir"`
	ImportsDir string `toml:"imports_dir"`
	StateDir   string `toml:"state_dir"`
	// RootMarker is the directory name that anchors store-relative paths.
	RootMarker string `toml:"root_marker"`
}

// Transcription configures the external speech-to-text pipeline.
type Transcription struct {
	WhisperBinary  string `toml:"whisper_binary"`
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	ModelPath      string `toml:"model_path"`
	ModelName      string `toml:"model_name"`
	Language       string `toml:"language"`
	Threads        int    `toml:"threads"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains configuration for the background worker pacing.
type Workflow struct {
	PollIntervalMillis   int `toml:"poll_interval_ms"`
	PausedIntervalMillis int `toml:"paused_interval_ms"`
	BusyIntervalMillis   int `toml:"busy_interval_ms"`
	ErrorRetryInterval   int `toml:"error_retry_interval"`
	HeartbeatInterval    int `toml:"heartbeat_interval"`
	HeartbeatTimeout     int `toml:"heartbeat_timeout"`
	Workers              int `toml:"workers"`
	DefaultMaxRetries    int `toml:"default_max_retries"`
}

// Sync contains configuration for filesystem reconciliation and retention.
type Sync struct {
	Enabled             bool     `toml:"enabled"`
	InitialDelaySeconds int      `toml:"initial_delay_seconds"`
	Schedule            string   `toml:"schedule"`
	GCSchedule          string   `toml:"gc_schedule"`
	RetentionHours      int      `toml:"retention_hours"`
	Watch               bool     `toml:"watch"`
	WatchDebounceMillis int      `toml:"watch_debounce_ms"`
	AudioExtensions     []string `toml:"audio_extensions"`
	ImportExtensions    []string `toml:"import_extensions"`
}

// Notifications contains configuration for push notifications and the
// in-process event history.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	TaskCompleted  bool   `toml:"task_completed"`
	TaskFailed     bool   `toml:"task_failed"`
	SyncComplete   bool   `toml:"sync_complete"`
	Imports        bool   `toml:"imports"`
	EventHistory   int    `toml:"event_history"`
}

// API configures the optional read-only HTTP status API.
type API struct {
	// Bind is a host:port listen address. Empty disables the API.
	Bind  string `toml:"bind"`
	Token string `toml:"token"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for voicenotes.
//
// Configuration sections by subsystem:
//   - Paths: notes tree, imports drop folder, daemon state
//   - Transcription: whisper and ffmpeg invocation
//   - Workflow: worker polling, heartbeats, retry defaults
//   - Sync: reconciliation schedule, watcher, task retention
//   - Notifications: ntfy push settings and event history size
//   - API: optional HTTP status endpoint for GUI clients
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Transcription Transcription `toml:"transcription"`
	Workflow      Workflow      `toml:"workflow"`
	Sync          Sync          `toml:"sync"`
	Notifications Notifications `toml:"notifications"`
	API           API           `toml:"api"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/voicenotes/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("voicenotes.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{
		c.Paths.NotesDir,
		c.Paths.StateDir,
		c.LogDir(),
		c.PendingImportsDir(),
		c.ProcessedImportsDir(),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LogDir returns the directory holding daemon log files.
func (c *Config) LogDir() string {
	return filepath.Join(c.Paths.StateDir, "logs")
}

// DatabasePath returns the SQLite database location.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "voicenotes.db")
}

// SocketPath returns the daemon IPC socket location.
func (c *Config) SocketPath() string {
	return filepath.Join(c.Paths.StateDir, "voicenotes.sock")
}

// LockPath returns the single-instance lock file location.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "voicenotes.lock")
}

// PIDPath returns the daemon pid file location.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.StateDir, "voicenotes.pid")
}

// PendingImportsDir returns the drop folder scanned for new imports.
func (c *Config) PendingImportsDir() string {
	return filepath.Join(c.Paths.ImportsDir, "pending")
}

// ProcessedImportsDir returns the folder receiving processed-import manifests.
func (c *Config) ProcessedImportsDir() string {
	return filepath.Join(c.Paths.ImportsDir, "processed")
}

// PollInterval is the idle sleep between claim attempts.
func (w Workflow) PollInterval() time.Duration {
	return time.Duration(w.PollIntervalMillis) * time.Millisecond
}

// PausedInterval is the sleep between checks while the queue is paused.
func (w Workflow) PausedInterval() time.Duration {
	return time.Duration(w.PausedIntervalMillis) * time.Millisecond
}

// BusyInterval is the sleep between checks while a recording is active.
func (w Workflow) BusyInterval() time.Duration {
	return time.Duration(w.BusyIntervalMillis) * time.Millisecond
}

// Timeout bounds a single transcription run.
func (t Transcription) Timeout() time.Duration {
	return time.Duration(t.TimeoutSeconds) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the configuration as TOML.
func (c *Config) Encode() ([]byte, error) {
	data, err := toml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
