package watcher_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/imports"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/testsupport"
	"voicenotes/internal/watcher"
)

type fakeEnqueuer struct {
	mu    sync.Mutex
	paths []string
}

func (f *fakeEnqueuer) EnqueueTranscription(_ context.Context, audioPath string, priority queue.Priority) (*queue.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, audioPath)
	return queue.NewTask("20250101090000", queue.TranscribeOrphan{AudioPath: audioPath}, priority, 2), nil
}

func (f *fakeEnqueuer) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.paths...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startWatcher(t *testing.T, cfg *config.Config, store *queue.Store, enq watcher.Enqueuer, iq watcher.ImportQueuer) *watcher.Watcher {
	t.Helper()
	w := watcher.New(cfg, store, logging.NewNop(), enq, iq)
	ctx, cancel := context.WithCancel(context.Background())
	if err := w.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		w.Stop()
		cancel()
	})
	return w
}

func dayDir(t *testing.T, cfg *config.Config) string {
	t.Helper()
	dir := filepath.Join(cfg.Paths.NotesDir, "2025", "2025-01-01")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestWatcherQueuesNewAudioOnce(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cfg.Sync.WatchDebounceMillis = 200
	dir := dayDir(t, cfg)
	enq := &fakeEnqueuer{}
	startWatcher(t, cfg, store, enq, nil)

	audio := filepath.Join(dir, "090000.wav")
	testsupport.WriteWAV(t, audio, 8000, 0.1)
	testsupport.WriteText(t, filepath.Join(dir, "notes.md"), "ignored")

	waitFor(t, "audio enqueue", func() bool { return len(enq.calls()) > 0 })
	time.Sleep(400 * time.Millisecond)
	calls := enq.calls()
	if len(calls) != 1 || calls[0] != audio {
		t.Fatalf("expected a single debounced enqueue for %s, got %v", audio, calls)
	}
}

func TestWatcherSkipsCompletedAudio(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := dayDir(t, cfg)
	rec := testsupport.NewRecord(t, store, "20250101090000", "2025/2025-01-01/090000.wav")
	rec.Status = queue.RecordComplete
	rec.Text = "done"
	if err := store.PutRecord(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	enq := &fakeEnqueuer{}
	startWatcher(t, cfg, store, enq, nil)

	testsupport.WriteWAV(t, filepath.Join(dir, "090000.wav"), 8000, 0.1)
	time.Sleep(300 * time.Millisecond)
	if calls := enq.calls(); len(calls) != 0 {
		t.Fatalf("completed audio should not be queued again, got %v", calls)
	}
}

func TestWatcherMarksRemovedAudioMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := dayDir(t, cfg)
	audio := filepath.Join(dir, "100000.wav")
	testsupport.WriteWAV(t, audio, 8000, 0.1)
	testsupport.NewRecord(t, store, "20250101100000", "2025/2025-01-01/100000.wav")
	startWatcher(t, cfg, store, &fakeEnqueuer{}, nil)

	if err := os.Remove(audio); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "record marked missing", func() bool {
		rec, err := store.GetRecord(context.Background(), "20250101100000")
		return err == nil && rec != nil && rec.Missing
	})
}

func TestWatcherRefreshesEditedTranscript(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	dir := dayDir(t, cfg)
	testsupport.WriteWAV(t, filepath.Join(dir, "110000.wav"), 8000, 0.1)
	testsupport.NewRecord(t, store, "20250101110000", "2025/2025-01-01/110000.wav")
	startWatcher(t, cfg, store, &fakeEnqueuer{}, nil)

	testsupport.WriteText(t, filepath.Join(dir, "110000.txt"), "typed by hand\n")
	waitFor(t, "transcript refresh", func() bool {
		rec, err := store.GetRecord(context.Background(), "20250101110000")
		return err == nil && rec != nil && rec.Text == "typed by hand"
	})
	rec, _ := store.GetRecord(context.Background(), "20250101110000")
	if rec.Status != queue.RecordComplete || rec.TextPath != "2025/2025-01-01/110000.txt" {
		t.Fatalf("unexpected record after refresh: %+v", rec)
	}
}

func TestWatcherQueuesDroppedImports(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	scanner := imports.NewScanner(cfg, store, logging.NewNop())
	startWatcher(t, cfg, store, &fakeEnqueuer{}, scanner)

	testsupport.WriteFile(t, filepath.Join(cfg.PendingImportsDir(), "call.m4a"), 256)
	testsupport.WriteFile(t, filepath.Join(cfg.PendingImportsDir(), "scan.pdf"), 256)

	ctx := context.Background()
	waitFor(t, "import task", func() bool {
		open, err := store.HasOpenTask(ctx, queue.ImportTaskKey("call.m4a"))
		return err == nil && open
	})
	time.Sleep(100 * time.Millisecond)
	tasks, err := store.ListTasks(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 1 {
		t.Fatalf("expected only the audio import to be queued, got %d tasks", len(tasks))
	}
}

func TestWatcherStartFailsWithoutNotesDir(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	cfg.Paths.NotesDir = filepath.Join(t.TempDir(), "absent")

	w := watcher.New(cfg, store, logging.NewNop(), &fakeEnqueuer{}, nil)
	if err := w.Start(context.Background()); err == nil {
		w.Stop()
		t.Fatal("expected start to fail for a missing notes directory")
	}
	if w.Running() {
		t.Fatal("watcher should not report running after a failed start")
	}
}
