package api_test

import (
	"context"
	"testing"
	"time"

	"voicenotes/internal/api"
	"voicenotes/internal/queue"
	"voicenotes/internal/testsupport"
)

func putNote(t *testing.T, store *queue.Store, id, text string, created time.Time) {
	t.Helper()
	rec := &queue.Record{
		ID:        id,
		AudioPath: "2025/2025-01-01/" + id[8:] + ".wav",
		Text:      text,
		Status:    queue.RecordComplete,
		Source:    queue.SourceRecording,
		CreatedAt: created,
	}
	if err := store.PutRecord(context.Background(), rec); err != nil {
		t.Fatalf("PutRecord: %v", err)
	}
}

func TestRecordServiceSearchRanksByRelevance(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	putNote(t, store, "20250101080000", "budget budget budget review", base)
	putNote(t, store, "20250101090000", "long walk, thought about the garden, the trip, and the budget", base.Add(time.Hour))
	putNote(t, store, "20250101100000", "nothing relevant here", base.Add(2*time.Hour))

	svc := api.NewRecordService(store)
	results, err := svc.Search(context.Background(), "budget", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected two matches, got %d", len(results))
	}
	if results[0].ID != "20250101080000" {
		t.Fatalf("expected the focused note first, got %s", results[0].ID)
	}
	if results[0].Score <= results[1].Score {
		t.Fatalf("expected descending scores, got %v then %v", results[0].Score, results[1].Score)
	}

	limited, err := svc.Search(context.Background(), "budget", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "20250101080000" {
		t.Fatalf("limit should keep the best match, got %+v", limited)
	}

	if empty, err := svc.Search(context.Background(), "   ", 10); err != nil || empty != nil {
		t.Fatalf("blank query should return nothing, got %v %v", empty, err)
	}
}

func TestRecordServiceListShowStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	base := time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)
	putNote(t, store, "20250201080000", "first", base)
	testsupport.NewRecord(t, store, "20250201090000", "2025/2025-02-01/090000.wav")

	svc := api.NewRecordService(store)
	ctx := context.Background()

	all, err := svc.List(ctx, "", 10, 0)
	if err != nil || len(all) != 2 {
		t.Fatalf("List all: %v (%d)", err, len(all))
	}
	pending, err := svc.List(ctx, queue.RecordPending, 10, 0)
	if err != nil || len(pending) != 1 || pending[0].ID != "20250201090000" {
		t.Fatalf("List pending: %v %+v", err, pending)
	}

	shown, err := svc.Show(ctx, "20250201080000")
	if err != nil || shown == nil {
		t.Fatalf("Show: %v", err)
	}
	if shown.Text != "first" || shown.Status != "complete" || shown.CreatedAt != "2025-02-01T08:00:00.000Z" {
		t.Fatalf("unexpected record %+v", shown)
	}
	if missing, err := svc.Show(ctx, "20990101000000"); err != nil || missing != nil {
		t.Fatalf("expected nil for unknown id, got %+v %v", missing, err)
	}

	stats, err := svc.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 2 || stats.ByStatus["complete"] != 1 || stats.ByStatus["pending"] != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestQueueServiceListAndDescribe(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	task := testsupport.Enqueue(t, store, "20250301080000",
		queue.TranscribeOrphan{AudioPath: "2025/2025-03-01/080000.wav", OutputPath: "2025/2025-03-01/080000.txt"},
		queue.PriorityHigh, 2)

	svc := api.NewQueueService(store)
	ctx := context.Background()
	tasks, err := svc.List(ctx, 10, queue.TaskPending)
	if err != nil || len(tasks) != 1 {
		t.Fatalf("List: %v (%d)", err, len(tasks))
	}
	got := tasks[0]
	if got.ID != task.ID || got.Priority != "high" || got.AudioPath != "2025/2025-03-01/080000.wav" || got.Type != string(queue.TaskTranscribeOrphan) {
		t.Fatalf("unexpected task dto %+v", got)
	}
	if string(got.Payload) == "" {
		t.Fatal("expected payload json")
	}

	status, err := svc.Status(ctx)
	if err != nil || status.Pending != 1 || status.Total != 1 {
		t.Fatalf("Status: %v %+v", err, status)
	}
	described, err := svc.Describe(ctx, task.ID)
	if err != nil || described == nil || described.TranscriptionID != "20250301080000" {
		t.Fatalf("Describe: %v %+v", err, described)
	}
}

func TestSortedStatuses(t *testing.T) {
	counts := map[string]int{"completed": 1, "pending": 2, "mystery": 3, "failed": 0, "processing": 1}
	got := api.SortedStatuses(counts)
	want := []string{"processing", "pending", "failed", "completed", "mystery"}
	if len(got) != len(want) {
		t.Fatalf("got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
