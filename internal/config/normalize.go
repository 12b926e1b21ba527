package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeTranscription(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeNotifications()
	c.normalizeAPI()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	if value, ok := os.LookupEnv("VOICENOTES_NOTES_DIR"); ok && strings.TrimSpace(value) != "" {
		c.Paths.NotesDir = strings.TrimSpace(value)
	}
	var err error
	if c.Paths.NotesDir, err = expandPath(c.Paths.NotesDir); err != nil {
		return fmt.Errorf("paths.notes_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ImportsDir) == "" {
		c.Paths.ImportsDir = defaultImportsDir
	}
	if c.Paths.ImportsDir, err = expandPath(c.Paths.ImportsDir); err != nil {
		return fmt.Errorf("paths.imports_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	c.Paths.RootMarker = strings.Trim(strings.TrimSpace(c.Paths.RootMarker), `/\`)
	if c.Paths.RootMarker == "" {
		c.Paths.RootMarker = defaultRootMarker
	}
	return nil
}

func (c *Config) normalizeTranscription() error {
	t := &c.Transcription
	t.WhisperBinary = strings.TrimSpace(t.WhisperBinary)
	if t.WhisperBinary == "" {
		t.WhisperBinary = defaultWhisperBinary
	}
	t.FFmpegBinary = strings.TrimSpace(t.FFmpegBinary)
	if t.FFmpegBinary == "" {
		t.FFmpegBinary = defaultFFmpegBinary
	}
	if value, ok := os.LookupEnv("WHISPER_MODEL"); ok && strings.TrimSpace(t.ModelPath) == "" {
		t.ModelPath = strings.TrimSpace(value)
	}
	var err error
	if t.ModelPath, err = expandPath(strings.TrimSpace(t.ModelPath)); err != nil {
		return fmt.Errorf("transcription.model_path: %w", err)
	}
	t.ModelName = strings.TrimSpace(t.ModelName)
	if t.ModelName == "" {
		t.ModelName = defaultModelName
	}
	t.Language = strings.ToLower(strings.TrimSpace(t.Language))
	if t.Language == "" {
		t.Language = defaultLanguage
	}
	if t.Threads < 0 {
		t.Threads = 0
	}
	return nil
}

func (c *Config) normalizeSync() {
	c.Sync.Schedule = strings.TrimSpace(c.Sync.Schedule)
	if c.Sync.Schedule == "" {
		c.Sync.Schedule = defaultSyncSchedule
	}
	c.Sync.GCSchedule = strings.TrimSpace(c.Sync.GCSchedule)
	if c.Sync.GCSchedule == "" {
		c.Sync.GCSchedule = defaultGCSchedule
	}
	c.Sync.AudioExtensions = normalizeExtensions(c.Sync.AudioExtensions, defaultAudioExtensions)
	c.Sync.ImportExtensions = normalizeExtensions(c.Sync.ImportExtensions, defaultImportExtensions)
}

func normalizeExtensions(values, fallback []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		ext := strings.ToLower(strings.TrimSpace(value))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, exists := seen[ext]; exists {
			continue
		}
		seen[ext] = struct{}{}
		out = append(out, ext)
	}
	if len(out) == 0 {
		return append([]string(nil), fallback...)
	}
	return out
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("VOICENOTES_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.EventHistory <= 0 {
		c.Notifications.EventHistory = defaultEventHistory
	}
}

func (c *Config) normalizeAPI() {
	c.API.Bind = strings.TrimSpace(c.API.Bind)
	if c.API.Token == "" {
		c.API.Token = os.Getenv("VOICENOTES_API_TOKEN")
	}
	c.API.Token = strings.TrimSpace(c.API.Token)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
