package logs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"voicenotes/internal/logging"
)

const (
	backwardBlock = 32 * 1024
	// Lines longer than this are cut when reading backwards.
	maxLineBytes = 1 << 20
	pollFallback = 250 * time.Millisecond
)

// TailOptions controls a Tail call. A negative Offset reads the last Limit
// lines; otherwise reading resumes at Offset. With Follow set and nothing
// new to return, Tail blocks up to Wait for the next complete line.
type TailOptions struct {
	Offset int64
	Limit  int
	Follow bool
	Wait   time.Duration
	Filter Filter
}

// TailResult carries lines plus the offset to pass to the next call. The
// offset never points into the middle of a line.
type TailResult struct {
	Lines  []string
	Offset int64
}

// Filter narrows JSON log lines by level and record or task id. Lines that
// are not JSON always pass.
type Filter struct {
	MinLevel        string
	TaskID          string
	TranscriptionID string
}

func (f Filter) empty() bool {
	return f.MinLevel == "" && f.TaskID == "" && f.TranscriptionID == ""
}

func (f Filter) match(line string) bool {
	if f.empty() {
		return true
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		return true
	}
	if f.MinLevel != "" {
		if min, err := logging.ParseLevel(f.MinLevel); err == nil {
			level, _ := entry["level"].(string)
			if got, err := logging.ParseLevel(level); err == nil && level != "" && got < min {
				return false
			}
		}
	}
	if f.TaskID != "" && entry[logging.FieldTaskID] != f.TaskID {
		return false
	}
	if f.TranscriptionID != "" && entry[logging.FieldTranscriptionID] != f.TranscriptionID {
		return false
	}
	return true
}

// Tail reads the log at path. A missing file yields no lines and offset 0.
func Tail(ctx context.Context, path string, opts TailOptions) (TailResult, error) {
	if opts.Wait < 0 {
		opts.Wait = 0
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return TailResult{}, nil
	}
	if err != nil {
		return TailResult{Offset: opts.Offset}, fmt.Errorf("open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return TailResult{Offset: opts.Offset}, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		file.Close()
		return TailResult{Offset: opts.Offset}, fmt.Errorf("log path %q is a directory", path)
	}

	var result TailResult
	if opts.Offset < 0 {
		result, err = lastLines(file, info.Size(), opts.Limit, opts.Filter)
	} else {
		offset := opts.Offset
		// A shorter file was rotated or truncated; start over.
		if offset > info.Size() {
			offset = 0
		}
		result, err = readFrom(file, offset, opts.Filter)
	}
	file.Close()
	if err != nil {
		return result, err
	}
	if len(result.Lines) > 0 || !opts.Follow || opts.Wait == 0 {
		return result, nil
	}
	return follow(ctx, path, result.Offset, opts)
}

// lastLines walks backwards from the end in fixed blocks until it has seen
// enough complete lines.
func lastLines(file *os.File, size int64, limit int, filter Filter) (TailResult, error) {
	end, err := completeEnd(file, size)
	if err != nil {
		return TailResult{}, err
	}
	result := TailResult{Offset: end}
	if limit <= 0 || end == 0 {
		return result, nil
	}

	var (
		collected []string
		carry     []byte
		pos       = end
	)
	for pos > 0 && len(collected) < limit {
		n := int64(backwardBlock)
		if pos < n {
			n = pos
		}
		pos -= n
		block := make([]byte, n)
		if _, err := file.ReadAt(block, pos); err != nil && !errors.Is(err, io.EOF) {
			return result, fmt.Errorf("read log file: %w", err)
		}
		chunk := append(block, carry...)
		parts := bytes.Split(chunk, []byte{'\n'})
		// parts[0] may continue in the previous block.
		carry = parts[0]
		if len(carry) > maxLineBytes {
			carry = carry[len(carry)-maxLineBytes:]
		}
		for i := len(parts) - 1; i >= 1 && len(collected) < limit; i-- {
			line := string(parts[i])
			if line != "" && filter.match(line) {
				collected = append(collected, line)
			}
		}
	}
	if pos == 0 && len(collected) < limit && len(carry) > 0 && filter.match(string(carry)) {
		collected = append(collected, string(carry))
	}

	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	result.Lines = collected
	return result, nil
}

// completeEnd returns the offset just past the last newline, so a line still
// being written is picked up whole by the next call.
func completeEnd(file *os.File, size int64) (int64, error) {
	pos := size
	buf := make([]byte, 4096)
	for pos > 0 {
		n := int64(len(buf))
		if pos < n {
			n = pos
		}
		if _, err := file.ReadAt(buf[:n], pos-n); err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("read log file: %w", err)
		}
		if idx := bytes.LastIndexByte(buf[:n], '\n'); idx >= 0 {
			return pos - n + int64(idx) + 1, nil
		}
		pos -= n
	}
	return 0, nil
}

func readFrom(file *os.File, offset int64, filter Filter) (TailResult, error) {
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("seek log file: %w", err)
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return TailResult{Offset: offset}, fmt.Errorf("read log file: %w", err)
	}
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return TailResult{Offset: offset}, nil
	}
	result := TailResult{Offset: offset + int64(last) + 1}
	for _, raw := range strings.Split(string(data[:last]), "\n") {
		if raw != "" && filter.match(raw) {
			result.Lines = append(result.Lines, raw)
		}
	}
	return result, nil
}

// follow blocks until new complete lines land, Wait elapses, or ctx ends.
// It listens for writes on the log directory and falls back to polling when
// the watcher cannot be created.
func follow(ctx context.Context, path string, offset int64, opts TailOptions) (TailResult, error) {
	timer := time.NewTimer(opts.Wait)
	defer timer.Stop()

	var changes <-chan fsnotify.Event
	var poll <-chan time.Time
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(filepath.Dir(path)); err == nil {
			changes = watcher.Events
		}
	}
	if changes == nil {
		ticker := time.NewTicker(pollFallback)
		defer ticker.Stop()
		poll = ticker.C
	}

	result := TailResult{Offset: offset}
	for {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		case <-timer.C:
			return result, nil
		case ev := <-changes:
			// The log is usually reached through the voicenotes.log symlink,
			// so any write in the directory triggers a re-read.
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
		case <-poll:
		}
		next, err := Tail(ctx, path, TailOptions{Offset: result.Offset, Filter: opts.Filter})
		if err != nil {
			return result, err
		}
		result.Offset = next.Offset
		if len(next.Lines) > 0 {
			result.Lines = next.Lines
			return result, nil
		}
	}
}
