package imports_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicenotes/internal/imports"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/services"
	"voicenotes/internal/testsupport"
)

func fixedClock() time.Time {
	return time.Date(2025, 3, 4, 10, 15, 0, 0, time.Local)
}

func TestScanAndQueueDeduplicates(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	pending := cfg.PendingImportsDir()
	testsupport.WriteFile(t, filepath.Join(pending, "memo.m4a"), 100)
	testsupport.WriteFile(t, filepath.Join(pending, "phone", "call.WAV"), 100)
	testsupport.WriteFile(t, filepath.Join(pending, "phone", "deep", "skip.wav"), 100)
	testsupport.WriteFile(t, filepath.Join(pending, "notes.pdf"), 100)
	testsupport.WriteFile(t, filepath.Join(pending, ".hidden.wav"), 100)

	scanner := imports.NewScanner(cfg, store, logging.NewNop())
	ctx := context.Background()

	queued, err := scanner.ScanAndQueue(ctx)
	if err != nil {
		t.Fatalf("ScanAndQueue: %v", err)
	}
	if queued != 2 {
		t.Fatalf("expected two imports queued, got %d", queued)
	}
	again, err := scanner.ScanAndQueue(ctx)
	if err != nil {
		t.Fatalf("second ScanAndQueue: %v", err)
	}
	if again != 0 {
		t.Fatalf("expected no duplicates, got %d", again)
	}

	tasks, err := store.ListTasks(ctx, 10, 0)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	keys := map[string]bool{}
	for _, task := range tasks {
		if task.Type != queue.TaskProcessImport || task.Priority != queue.PriorityNormal {
			t.Fatalf("unexpected task %+v", task)
		}
		keys[task.TranscriptionID] = true
	}
	if !keys[queue.ImportTaskKey("memo.m4a")] || !keys[queue.ImportTaskKey("phone/call.WAV")] {
		t.Fatalf("unexpected task keys %v", keys)
	}
}

func TestProcessMovesFileAndQueuesTranscription(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	src := filepath.Join(cfg.PendingImportsDir(), "Team Sync #3.M4A")
	testsupport.WriteFile(t, src, 4096)

	processor := imports.NewProcessor(cfg, store, logging.NewNop(), nil)
	processor.SetClock(fixedClock)

	ctx := context.Background()
	result, err := processor.Process(ctx, queue.ProcessImport{ImportPath: "Team Sync #3.M4A"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	wantRel := "2025/2025-03-04/101500-imported-team-sync-3.m4a"
	if result.AudioPath != wantRel {
		t.Fatalf("unexpected target %q", result.AudioPath)
	}
	if result.TranscriptionID != "20250304101500" {
		t.Fatalf("unexpected id %q", result.TranscriptionID)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Fatalf("expected source to be moved, got %v", err)
	}
	if info, err := os.Stat(filepath.Join(cfg.Paths.NotesDir, filepath.FromSlash(wantRel))); err != nil || info.Size() != 4096 {
		t.Fatalf("expected moved file, got %v", err)
	}

	rec, err := store.GetRecord(ctx, result.TranscriptionID)
	if err != nil || rec == nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if rec.Source != queue.SourceImport || rec.Status != queue.RecordPending || rec.FileSizeBytes != 4096 {
		t.Fatalf("unexpected record %+v", rec)
	}

	task, err := store.GetTask(ctx, result.TaskID)
	if err != nil || task == nil {
		t.Fatalf("GetTask: %v", err)
	}
	payload, ok := task.Payload.(queue.TranscribeImported)
	if !ok || payload.AudioPath != wantRel || payload.OriginalName != "Team Sync #3.M4A" {
		t.Fatalf("unexpected payload %#v", task.Payload)
	}
	if task.MaxRetries != 2 || task.Priority != queue.PriorityNormal {
		t.Fatalf("unexpected task settings %+v", task)
	}

	data, err := os.ReadFile(result.ManifestPath)
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	var manifest map[string]any
	if err := json.Unmarshal(data, &manifest); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if manifest["target_path"] != wantRel || manifest["transcription_id"] != "20250304101500" {
		t.Fatalf("unexpected manifest %v", manifest)
	}
}

func TestProcessBumpsSecondOnCollision(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.NewRecord(t, store, "20250304101500", "2025/2025-03-04/101500.wav")
	testsupport.WriteFile(t, filepath.Join(cfg.PendingImportsDir(), "a.wav"), 10)

	processor := imports.NewProcessor(cfg, store, logging.NewNop(), nil)
	processor.SetClock(fixedClock)

	result, err := processor.Process(context.Background(), queue.ProcessImport{ImportPath: "a.wav"})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if result.TranscriptionID != "20250304101501" {
		t.Fatalf("expected bumped id, got %q", result.TranscriptionID)
	}
	if result.AudioPath != "2025/2025-03-04/101501-imported-a.wav" {
		t.Fatalf("unexpected target %q", result.AudioPath)
	}
}

func TestProcessMissingSourceIsPermanent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	processor := imports.NewProcessor(cfg, store, logging.NewNop(), nil)

	_, err := processor.Process(context.Background(), queue.ProcessImport{ImportPath: "gone.wav"})
	if !errors.Is(err, services.ErrValidation) || services.Retryable(err) {
		t.Fatalf("expected permanent validation error, got %v", err)
	}

	_, err = processor.Process(context.Background(), queue.ProcessImport{ImportPath: "../escape.wav"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected path escape to be rejected, got %v", err)
	}
}
