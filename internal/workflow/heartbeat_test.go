package workflow

import (
	"context"
	"testing"
	"time"

	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/testsupport"
)

func TestHeartbeatsReclaimIsThrottled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewRecord(t, store, "20250401090000", "2025/2025-04-01/090000.wav")
	testsupport.Enqueue(t, store, "20250401090000", queue.TranscribeOrphan{AudioPath: "2025/2025-04-01/090000.wav"}, queue.PriorityNormal, 2)

	hb := newHeartbeats(store, logging.NewNop(), time.Hour, time.Millisecond)
	if err := hb.reclaim(ctx, logging.NewNop()); err != nil {
		t.Fatalf("first reclaim: %v", err)
	}

	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	// Still inside the interval, so the stale claim survives.
	if err := hb.reclaim(ctx, logging.NewNop()); err != nil {
		t.Fatalf("throttled reclaim: %v", err)
	}
	task, err := store.GetTask(ctx, claimed.ID)
	if err != nil || task.Status != queue.TaskProcessing {
		t.Fatalf("expected task to stay processing: %+v, %v", task, err)
	}

	hb.lastReclaim = time.Time{}
	if err := hb.reclaim(ctx, logging.NewNop()); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	task, err = store.GetTask(ctx, claimed.ID)
	if err != nil || task.Status != queue.TaskPending {
		t.Fatalf("expected task back to pending: %+v, %v", task, err)
	}
}

func TestHeartbeatsBeatRefreshesUntilStopped(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()
	testsupport.NewRecord(t, store, "20250401100000", "2025/2025-04-01/100000.wav")
	testsupport.Enqueue(t, store, "20250401100000", queue.TranscribeOrphan{AudioPath: "2025/2025-04-01/100000.wav"}, queue.PriorityNormal, 2)
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	initial := *claimed.LastHeartbeat

	hb := newHeartbeats(store, logging.NewNop(), 10*time.Millisecond, time.Minute)
	stop := hb.beat(ctx, claimed.ID)
	deadline := time.Now().Add(5 * time.Second)
	for {
		task, err := store.GetTask(ctx, claimed.ID)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if task.LastHeartbeat != nil && task.LastHeartbeat.After(initial) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("heartbeat was never refreshed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	stop()
}

func TestHeartbeatsDisabledIntervalIsNoop(t *testing.T) {
	hb := newHeartbeats(nil, logging.NewNop(), 0, 0)
	hb.beat(context.Background(), "unused")()
	if err := hb.reclaim(context.Background(), logging.NewNop()); err != nil {
		t.Fatalf("reclaim with zero timeout: %v", err)
	}
}
