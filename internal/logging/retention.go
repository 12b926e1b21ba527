package logging

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// RetentionTarget names the run logs to prune in Dir. Files listed in
// Exclude are never removed, and the newest Keep matches survive regardless
// of age so a long idle period cannot wipe every log.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
	Keep    int
}

type logFile struct {
	path    string
	modTime time.Time
}

// CleanupOldLogs deletes matching files older than retentionDays and
// returns how many were removed. retentionDays <= 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) int {
	if retentionDays <= 0 {
		return 0
	}
	if logger == nil {
		logger = NewNop()
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	removed := 0
	for _, target := range targets {
		for _, file := range target.candidates() {
			if !file.modTime.Before(cutoff) {
				continue
			}
			if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
				WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
					String("path", file.path),
					Error(err),
					String(FieldErrorHint, "check file permissions on the state directory"),
					String(FieldImpact, "old log file remains on disk"),
				)
				continue
			}
			removed++
			logger.Debug("log pruned",
				String("path", file.path),
				String(FieldEventType, "log_pruned"),
			)
		}
	}
	if removed > 0 {
		logger.Info("old logs pruned",
			Int("removed", removed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_retention"),
		)
	}
	return removed
}

// candidates lists prunable files, oldest first, minus exclusions and the
// newest Keep.
func (t RetentionTarget) candidates() []logFile {
	dir := strings.TrimSpace(t.Dir)
	if dir == "" {
		return nil
	}
	pattern := strings.TrimSpace(t.Pattern)
	if pattern == "" {
		pattern = "*"
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil
	}
	skip := make(map[string]bool, len(t.Exclude))
	for _, path := range t.Exclude {
		if abs, err := filepath.Abs(strings.TrimSpace(path)); err == nil {
			skip[abs] = true
		}
	}

	var files []logFile
	for _, match := range matches {
		abs, err := filepath.Abs(match)
		if err != nil || skip[abs] {
			continue
		}
		info, err := os.Lstat(abs)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		files = append(files, logFile{path: abs, modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
	if t.Keep > 0 {
		if t.Keep >= len(files) {
			return nil
		}
		files = files[t.Keep:]
	}
	for i, j := 0, len(files)-1; i < j; i, j = i+1, j-1 {
		files[i], files[j] = files[j], files[i]
	}
	return files
}
