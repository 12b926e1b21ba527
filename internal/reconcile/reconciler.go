package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/identity"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
)

// SyncReport summarizes one reconciliation pass.
type SyncReport struct {
	Scanned   int           `json:"scanned"`
	New       int           `json:"new"`
	Updated   int           `json:"updated"`
	Missing   int           `json:"missing"`
	Enqueued  int           `json:"enqueued"`
	Errors    []string      `json:"errors,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

func (r *SyncReport) addError(path string, err error) {
	r.Errors = append(r.Errors, fmt.Sprintf("%s: %v", path, err))
}

// Reconciler walks the notes tree and updates the record store to match.
type Reconciler struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	exts     map[string]struct{}
	now      func() time.Time

	mu sync.Mutex
}

// New constructs a Reconciler. A nil notifier disables sync events.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Reconciler {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	exts := make(map[string]struct{}, len(cfg.Sync.AudioExtensions))
	for _, ext := range cfg.Sync.AudioExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Reconciler{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "reconcile"),
		notifier: notifier,
		exts:     exts,
		now:      time.Now,
	}
}

// IsAudio reports whether path has one of the configured audio extensions.
func (r *Reconciler) IsAudio(path string) bool {
	_, ok := r.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan lists audio files under the notes root, skipping hidden directories
// and files. Paths are absolute and sorted.
func (r *Reconciler) Scan(ctx context.Context) ([]string, error) {
	root := r.cfg.Paths.NotesDir
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			r.logger.Debug("skipping unreadable path", logging.String("path", path), logging.Error(err))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || !d.Type().IsRegular() {
			return nil
		}
		if r.IsAudio(name) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// Reconcile runs one pass over the notes tree. Per-file problems are
// collected in the report; only store failures and cancellation abort the
// pass.
func (r *Reconciler) Reconcile(ctx context.Context) (SyncReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := SyncReport{StartedAt: r.now().UTC()}
	start := time.Now()

	known, err := r.store.AllRecordIDs(ctx)
	if err != nil {
		return report, err
	}
	files, err := r.Scan(ctx)
	if err != nil {
		return report, err
	}
	report.Scanned = len(files)

	seen := make(map[string]string, len(files))
	for _, abs := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		obs, err := r.observe(abs)
		if err != nil {
			// The audio is on disk; keep its record out of the missing sweep.
			if _, dup := seen[obs.id]; obs.id != "" && !dup {
				seen[obs.id] = obs.rel
			}
			report.addError(abs, err)
			continue
		}
		if prev, dup := seen[obs.id]; dup {
			report.addError(obs.rel, fmt.Errorf("id %s already used by %s", obs.id, prev))
			continue
		}
		seen[obs.id] = obs.rel

		if _, exists := known[obs.id]; !exists {
			if err := r.insert(ctx, obs, &report); err != nil {
				return report, err
			}
			continue
		}
		if err := r.refresh(ctx, obs, &report); err != nil {
			return report, err
		}
	}

	for id := range known {
		if _, ok := seen[id]; ok {
			continue
		}
		changed, err := r.store.MarkRecordMissing(ctx, id)
		if err != nil {
			return report, err
		}
		if changed {
			report.Missing++
			r.logger.Info("audio file missing; record soft-deleted",
				logging.String(logging.FieldTranscriptionID, id),
				logging.String(logging.FieldEventType, "record_missing"),
			)
		}
	}

	report.Duration = time.Since(start)
	r.logReport(report)
	r.publish(ctx, report)
	return report, nil
}

func (r *Reconciler) insert(ctx context.Context, obs observation, report *SyncReport) error {
	rec := obs.record()
	rec.Source = queue.SourceOrphan
	created, err := r.store.InsertRecord(ctx, rec)
	if err != nil {
		return err
	}
	if !created {
		// Registered concurrently, e.g. by a watcher event.
		return r.refresh(ctx, obs, report)
	}
	report.New++
	r.logger.Debug("record discovered",
		logging.String(logging.FieldTranscriptionID, obs.id),
		logging.String("audio_path", obs.rel),
		logging.String("status", string(obs.status)),
	)
	if obs.status.Unresolved() {
		return r.ensureTask(ctx, obs, report)
	}
	return nil
}

// refresh applies what the disk says to an existing record. Only promotion
// to complete, transcript text, size, location, and reappearance count as
// updates; a complete record is never demoted.
func (r *Reconciler) refresh(ctx context.Context, obs observation, report *SyncReport) error {
	existing, err := r.store.GetRecord(ctx, obs.id)
	if err != nil {
		return err
	}
	if existing == nil {
		return r.insert(ctx, obs, report)
	}

	next := obs.record()
	next.Status = existing.Status
	changed := false

	if existing.Missing {
		changed = true
		if existing.Status != queue.RecordComplete {
			next.Status = obs.status
		}
	}
	if obs.status == queue.RecordComplete {
		if existing.Status != queue.RecordComplete {
			next.Status = queue.RecordComplete
			changed = true
		}
		if existing.Text != obs.text {
			changed = true
		}
	} else {
		next.Text = ""
		next.TextPath = ""
	}
	if existing.FileSizeBytes != obs.size || existing.AudioPath != obs.rel {
		changed = true
	}

	if changed {
		if err := r.store.UpdateRecordFromDisk(ctx, next); err != nil {
			return err
		}
		report.Updated++
	}
	if next.Status.Unresolved() {
		return r.ensureTask(ctx, obs, report)
	}
	return nil
}

func (r *Reconciler) ensureTask(ctx context.Context, obs observation, report *SyncReport) error {
	task := queue.NewTask(obs.id, queue.TranscribeOrphan{
		AudioPath:  obs.rel,
		OutputPath: identity.TextPath(obs.rel),
	}, queue.PriorityLow, r.cfg.Workflow.DefaultMaxRetries)
	created, err := r.store.EnqueueUnique(ctx, task)
	if err != nil {
		return err
	}
	if created {
		report.Enqueued++
	}
	return nil
}

func (r *Reconciler) logReport(report SyncReport) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "sync_complete"),
		logging.Int("scanned", report.Scanned),
		logging.Int("new", report.New),
		logging.Int("updated", report.Updated),
		logging.Int("missing", report.Missing),
		logging.Int("enqueued", report.Enqueued),
		logging.Duration("duration", report.Duration),
	}
	if len(report.Errors) == 0 {
		r.logger.Info("filesystem sync complete", logging.Args(attrs...)...)
		return
	}
	attrs = append(attrs,
		logging.Int("errors", len(report.Errors)),
		logging.String("first_error", report.Errors[0]),
		logging.String(logging.FieldErrorHint, "rename or remove the listed files"),
		logging.String(logging.FieldImpact, "affected files are not tracked until fixed"),
	)
	logging.WarnWithContext(r.logger, "filesystem sync completed with errors", "sync_complete", attrs...)
}

func (r *Reconciler) publish(ctx context.Context, report SyncReport) {
	payload := notifications.Payload{
		"scanned":     report.Scanned,
		"new":         report.New,
		"updated":     report.Updated,
		"missing":     report.Missing,
		"enqueued":    report.Enqueued,
		"errors":      len(report.Errors),
		"duration_ms": report.Duration.Milliseconds(),
	}
	if err := r.notifier.Publish(ctx, notifications.EventSyncComplete, payload); err != nil && !errors.Is(err, context.Canceled) {
		r.logger.Debug("sync event publish failed", logging.Error(err))
	}
}

// fileTime picks the best timestamp for a file: modification time, then
// change time, then the date encoded in its path, then now.
func fileTime(info os.FileInfo, rel string, now time.Time) time.Time {
	if t := info.ModTime(); !t.IsZero() && t.Unix() > 0 {
		return t
	}
	if t := changeTime(info); !t.IsZero() && t.Unix() > 0 {
		return t
	}
	if t, ok := identity.PathTimestamp(rel); ok {
		return t
	}
	return now
}
