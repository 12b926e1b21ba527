package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/robfig/cron/v3"
)

var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateAPI() error {
	if c.API.Bind == "" {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.API.Bind); err != nil {
		return fmt.Errorf("api.bind %q must be host:port: %w", c.API.Bind, err)
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.NotesDir) == "" {
		return errors.New("paths.notes_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		return errors.New("paths.state_dir must be set")
	}
	if strings.ContainsAny(c.Paths.RootMarker, `/\`) {
		return errors.New("paths.root_marker must be a single directory name")
	}
	notes := filepath.Clean(c.Paths.NotesDir)
	imports := filepath.Clean(c.Paths.ImportsDir)
	if notes == imports {
		return errors.New("paths.imports_dir must differ from paths.notes_dir")
	}
	return nil
}

func (c *Config) validateTranscription() error {
	if c.Transcription.TimeoutSeconds <= 0 {
		return errors.New("transcription.timeout_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.poll_interval_ms":     c.Workflow.PollIntervalMillis,
		"workflow.paused_interval_ms":   c.Workflow.PausedIntervalMillis,
		"workflow.busy_interval_ms":     c.Workflow.BusyIntervalMillis,
		"workflow.error_retry_interval": c.Workflow.ErrorRetryInterval,
		"workflow.workers":              c.Workflow.Workers,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Workflow.DefaultMaxRetries < 0 {
		return errors.New("workflow.default_max_retries must be >= 0")
	}
	if c.Workflow.HeartbeatInterval <= 0 {
		return errors.New("workflow.heartbeat_interval must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= 0 {
		return errors.New("workflow.heartbeat_timeout must be positive")
	}
	if c.Workflow.HeartbeatTimeout <= c.Workflow.HeartbeatInterval {
		return errors.New("workflow.heartbeat_timeout must be greater than workflow.heartbeat_interval")
	}
	return nil
}

func (c *Config) validateSync() error {
	if c.Sync.InitialDelaySeconds < 0 {
		return errors.New("sync.initial_delay_seconds must be >= 0")
	}
	if c.Sync.RetentionHours <= 0 {
		return errors.New("sync.retention_hours must be positive")
	}
	if c.Sync.WatchDebounceMillis < 0 {
		return errors.New("sync.watch_debounce_ms must be >= 0")
	}
	if _, err := scheduleParser.Parse(c.Sync.Schedule); err != nil {
		return fmt.Errorf("sync.schedule %q is not a valid cron expression: %w", c.Sync.Schedule, err)
	}
	if _, err := scheduleParser.Parse(c.Sync.GCSchedule); err != nil {
		return fmt.Errorf("sync.gc_schedule %q is not a valid cron expression: %w", c.Sync.GCSchedule, err)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
		return nil
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", c.Logging.Level)
	}
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
