package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"voicenotes/internal/config"
)

// Options describes one logger sink set.
type Options struct {
	Level string
	// Format is "console" (default) or "json".
	Format string
	// OutputPaths accepts "stdout", "stderr" or file paths. Empty means stdout.
	OutputPaths []string
	// Development adds source locations regardless of level.
	Development bool
}

// Overrides carries command-line adjustments applied on top of config.
type Overrides struct {
	Level       string
	Development bool
}

// ParseLevel maps a config or flag value to a slog level. Empty is info.
func ParseLevel(value string) (slog.Level, error) {
	switch v := strings.ToLower(strings.TrimSpace(value)); v {
	case "":
		return slog.LevelInfo, nil
	case "warning":
		return slog.LevelWarn, nil
	case "fatal", "panic":
		return slog.LevelError, nil
	default:
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo, fmt.Errorf("log level: unsupported value %q", value)
		}
		return lvl, nil
	}
}

// New builds a logger writing to every path in opts.OutputPaths.
func New(opts Options) (*slog.Logger, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}
	lvl := new(slog.LevelVar)
	lvl.Set(level)

	w, err := openOutputs(opts.OutputPaths)
	if err != nil {
		return nil, err
	}
	withSource := opts.Development || level <= slog.LevelDebug

	switch strings.ToLower(strings.TrimSpace(opts.Format)) {
	case "", "console":
		return slog.New(newPrettyHandler(w, lvl, withSource)), nil
	case "json":
		h, err := newJSONHandler(w, lvl, withSource)
		if err != nil {
			return nil, err
		}
		return slog.New(h), nil
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
}

// NewFromConfig returns the daemon logger: stdout in the configured format,
// and when logPath is set, JSON lines in that file so `voicenotes logs` can
// filter them.
func NewFromConfig(cfg *config.Config, logPath string, ov Overrides) (*slog.Logger, error) {
	level, format := "info", "console"
	if cfg != nil {
		level, format = cfg.Logging.Level, cfg.Logging.Format
	}
	if strings.TrimSpace(ov.Level) != "" {
		level = ov.Level
	}

	console, err := New(Options{Level: level, Format: format, Development: ov.Development})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(logPath) == "" {
		return console, nil
	}
	file, err := New(Options{Level: level, Format: "json", OutputPaths: []string{logPath}, Development: ov.Development})
	if err != nil {
		return nil, err
	}
	return TeeLogger(console, file.Handler()), nil
}

func openOutputs(paths []string) (io.Writer, error) {
	var (
		names   []string
		writers []io.Writer
	)
	for _, raw := range paths {
		name := strings.TrimSpace(raw)
		if name == "" || slices.Contains(names, name) {
			continue
		}
		names = append(names, name)
		w, err := openOutput(name)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	switch len(writers) {
	case 0:
		return os.Stdout, nil
	case 1:
		return writers[0], nil
	default:
		return io.MultiWriter(writers...), nil
	}
}

func openOutput(name string) (io.Writer, error) {
	switch name {
	case "stdout":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	}
	if dir := filepath.Dir(name); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o664)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", name, err)
	}
	return f, nil
}
