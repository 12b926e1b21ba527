package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"voicenotes/internal/config"
	"voicenotes/internal/identity"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
)

// Enqueuer registers new audio for transcription.
type Enqueuer interface {
	EnqueueTranscription(ctx context.Context, audioPath string, priority queue.Priority) (*queue.Task, error)
}

// ImportQueuer queues one file from the pending imports folder.
type ImportQueuer interface {
	Queue(ctx context.Context, path string) (bool, error)
}

// Watcher turns fsnotify events into store updates and queued work.
type Watcher struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	enqueuer Enqueuer
	imports  ImportQueuer
	debounce time.Duration

	audioExts  map[string]struct{}
	importExts map[string]struct{}

	mu      sync.Mutex
	fsw     *fsnotify.Watcher
	timers  map[string]*time.Timer
	quit    chan struct{}
	running bool
	wg      sync.WaitGroup
}

// New constructs a Watcher. A nil imports queuer leaves the imports folder
// unwatched.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, enqueuer Enqueuer, imports ImportQueuer) *Watcher {
	return &Watcher{
		cfg:        cfg,
		store:      store,
		logger:     logging.NewComponentLogger(logger, "watcher"),
		enqueuer:   enqueuer,
		imports:    imports,
		debounce:   time.Duration(cfg.Sync.WatchDebounceMillis) * time.Millisecond,
		audioExts:  extensionSet(cfg.Sync.AudioExtensions),
		importExts: extensionSet(cfg.Sync.ImportExtensions),
		timers:     make(map[string]*time.Timer),
	}
}

func extensionSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, ext := range values {
		set[strings.ToLower(ext)] = struct{}{}
	}
	return set
}

// Start registers watches and begins processing events. Errors mean the
// watcher is not running; callers fall back to scheduled syncs.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return nil
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := addTree(fsw, w.cfg.Paths.NotesDir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch notes tree: %w", err)
	}
	if w.imports != nil {
		pending := w.cfg.PendingImportsDir()
		if err := os.MkdirAll(pending, 0o755); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("create imports folder: %w", err)
		}
		if err := addTree(fsw, pending); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch imports folder: %w", err)
		}
	}

	w.fsw = fsw
	w.quit = make(chan struct{})
	w.running = true
	quit := w.quit
	w.wg.Add(1)
	go w.loop(ctx, fsw, quit)

	w.logger.Info("filesystem watcher started",
		logging.String(logging.FieldEventType, "watcher_started"),
		logging.Int("watches", len(fsw.WatchList())),
	)
	return nil
}

// Stop ends event processing and cancels pending debounced actions.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	close(w.quit)
	for key, timer := range w.timers {
		timer.Stop()
		delete(w.timers, key)
	}
	w.running = false
	fsw := w.fsw
	w.fsw = nil
	w.mu.Unlock()

	_ = fsw.Close()
	w.wg.Wait()
	w.logger.Info("filesystem watcher stopped", logging.String(logging.FieldEventType, "watcher_stopped"))
}

// Running reports whether events are being processed.
func (w *Watcher) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, quit <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-quit:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			w.handle(ctx, fsw, ev)
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			logging.WarnWithContext(w.logger, "filesystem watcher error", "watcher_error",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "raise fs.inotify.max_user_watches if the notes tree is large"),
				logging.String(logging.FieldImpact, "changes are picked up by the next scheduled sync"),
			)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fsw *fsnotify.Watcher, ev fsnotify.Event) {
	name := filepath.Base(ev.Name)
	if strings.HasPrefix(name, ".") {
		return
	}
	inImports := w.imports != nil && within(w.cfg.PendingImportsDir(), ev.Name)

	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if err := addTree(fsw, ev.Name); err != nil {
				w.logger.Debug("unable to watch new directory", logging.String("path", ev.Name), logging.Error(err))
			}
			if inImports {
				w.queueImportsUnder(ctx, ev.Name)
			}
			return
		}
	}

	ext := strings.ToLower(filepath.Ext(name))
	switch {
	case inImports:
		if _, ok := w.importExts[ext]; ok && (ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write)) {
			w.schedule(ev.Name, func() { w.queueImport(ctx, ev.Name) })
		}
	case ext == ".txt":
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
			w.schedule(ev.Name, func() { w.refreshText(ctx, ev.Name) })
		}
	default:
		if _, ok := w.audioExts[ext]; !ok {
			return
		}
		if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
			w.cancel(ev.Name)
			w.markMissing(ctx, ev.Name)
			return
		}
		if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
			w.schedule(ev.Name, func() { w.enqueueAudio(ctx, ev.Name) })
		}
	}
}

// schedule runs fn once path has been quiet for the debounce interval.
func (w *Watcher) schedule(path string, fn func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return
	}
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		if !w.running {
			w.mu.Unlock()
			return
		}
		delete(w.timers, path)
		w.wg.Add(1)
		w.mu.Unlock()
		defer w.wg.Done()
		fn()
	})
}

func (w *Watcher) cancel(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if timer, ok := w.timers[path]; ok {
		timer.Stop()
		delete(w.timers, path)
	}
}

func (w *Watcher) enqueueAudio(ctx context.Context, abs string) {
	if _, err := os.Stat(abs); err != nil {
		return
	}
	rel := identity.StorePath(w.cfg.Paths.NotesDir, abs, w.cfg.Paths.RootMarker)
	rec, err := w.store.FindRecordByAudioPath(ctx, rel)
	if err != nil {
		w.logger.Debug("record lookup failed", logging.String("audio_path", rel), logging.Error(err))
		return
	}
	if rec != nil && rec.Status == queue.RecordComplete && !rec.Missing {
		return
	}
	task, err := w.enqueuer.EnqueueTranscription(ctx, abs, queue.PriorityLow)
	if err != nil {
		logging.WarnWithContext(w.logger, "failed to queue new audio", "watcher_enqueue_failed",
			logging.String("audio_path", rel),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file is picked up by the next scheduled sync"),
		)
		return
	}
	if task != nil {
		w.logger.Info("new audio queued",
			logging.String(logging.FieldEventType, "watcher_audio_queued"),
			logging.String(logging.FieldTranscriptionID, task.TranscriptionID),
			logging.String("audio_path", rel),
		)
	}
}

func (w *Watcher) refreshText(ctx context.Context, abs string) {
	data, err := os.ReadFile(abs)
	if err != nil {
		return
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}
	textRel := identity.StorePath(w.cfg.Paths.NotesDir, abs, w.cfg.Paths.RootMarker)
	base := strings.TrimSuffix(textRel, filepath.Ext(textRel))
	for ext := range w.audioExts {
		rec, err := w.store.FindRecordByAudioPath(ctx, base+ext)
		if err != nil || rec == nil {
			continue
		}
		if rec.Text == text {
			return
		}
		if err := w.store.UpdateRecordText(ctx, rec.ID, textRel, text); err != nil {
			w.logger.Debug("transcript refresh failed", logging.String(logging.FieldTranscriptionID, rec.ID), logging.Error(err))
			return
		}
		w.logger.Info("transcript updated from disk",
			logging.String(logging.FieldEventType, "watcher_text_updated"),
			logging.String(logging.FieldTranscriptionID, rec.ID),
		)
		return
	}
}

func (w *Watcher) markMissing(ctx context.Context, abs string) {
	rel := identity.StorePath(w.cfg.Paths.NotesDir, abs, w.cfg.Paths.RootMarker)
	rec, err := w.store.FindRecordByAudioPath(ctx, rel)
	if err != nil || rec == nil {
		return
	}
	changed, err := w.store.MarkRecordMissing(ctx, rec.ID)
	if err != nil {
		w.logger.Debug("mark missing failed", logging.String(logging.FieldTranscriptionID, rec.ID), logging.Error(err))
		return
	}
	if changed {
		w.logger.Info("audio removed; record soft-deleted",
			logging.String(logging.FieldEventType, "record_missing"),
			logging.String(logging.FieldTranscriptionID, rec.ID),
		)
	}
}

func (w *Watcher) queueImport(ctx context.Context, abs string) {
	if _, err := os.Stat(abs); err != nil {
		return
	}
	queued, err := w.imports.Queue(ctx, abs)
	if err != nil {
		logging.WarnWithContext(w.logger, "failed to queue import", "watcher_import_failed",
			logging.String("path", abs),
			logging.Error(err),
			logging.String(logging.FieldImpact, "file is picked up by the next imports scan"),
		)
		return
	}
	if queued {
		w.logger.Info("import queued", logging.String(logging.FieldEventType, "watcher_import_queued"), logging.String("path", abs))
	}
}

func (w *Watcher) queueImportsUnder(ctx context.Context, dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if _, ok := w.importExts[strings.ToLower(filepath.Ext(entry.Name()))]; ok {
			path := filepath.Join(dir, entry.Name())
			w.schedule(path, func() { w.queueImport(ctx, path) })
		}
	}
}

// addTree watches root and every non-hidden directory below it.
func addTree(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				return fs.SkipDir
			}
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return fs.SkipDir
		}
		return fsw.Add(path)
	})
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
