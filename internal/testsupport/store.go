package testsupport

import (
	"context"
	"testing"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRecord inserts a pending orphan record for the given id and path.
func NewRecord(t testing.TB, store *queue.Store, id, audioPath string) *queue.Record {
	t.Helper()

	rec := &queue.Record{
		ID:        id,
		AudioPath: audioPath,
		Status:    queue.RecordPending,
		Source:    queue.SourceOrphan,
		CreatedAt: time.Now().UTC(),
	}
	if err := store.PutRecord(context.Background(), rec); err != nil {
		t.Fatalf("store.PutRecord: %v", err)
	}
	return rec
}

// Enqueue persists a task and fails the test on error.
func Enqueue(t testing.TB, store *queue.Store, transcriptionID string, payload queue.Payload, priority queue.Priority, maxRetries int) *queue.Task {
	t.Helper()

	task := queue.NewTask(transcriptionID, payload, priority, maxRetries)
	if err := store.Enqueue(context.Background(), task); err != nil {
		t.Fatalf("store.Enqueue: %v", err)
	}
	return task
}
