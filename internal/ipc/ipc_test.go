package ipc_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/daemon"
	"voicenotes/internal/imports"
	"voicenotes/internal/ipc"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/testsupport"
	"voicenotes/internal/workflow"
)

func startServer(t *testing.T) (*config.Config, *queue.Store, *ipc.Client, string) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Sync.InitialDelaySeconds = 3600
	cfg.Sync.Watch = false
	store := testsupport.MustOpenStore(t, cfg)
	logPath := filepath.Join(cfg.LogDir(), "ipc-test.log")
	logger := logging.NewNop()
	events := notifications.NewEventBus(32)
	reconciler := reconcile.New(cfg, store, logger, events)
	mgr := workflow.NewManager(cfg, store, logger, events)
	mgr.ConfigureHandlers(workflow.HandlerSet{Syncer: reconciler})
	mgr.Pause()
	d, err := daemon.New(cfg, store, logger, mgr, daemon.Options{
		Reconciler: reconciler,
		Imports:    imports.NewScanner(cfg, store, logger),
		Events:     events,
		LogPath:    logPath,
	})
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(d.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := d.Start(ctx); err != nil {
		t.Fatalf("daemon.Start: %v", err)
	}

	socket := cfg.SocketPath()
	srv, err := ipc.NewServer(ctx, socket, d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping IPC server test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	client, err := ipc.Dial(socket)
	if err != nil {
		t.Fatalf("ipc.Dial: %v", err)
	}
	// Cleanups run in reverse, so the client closes before the server waits on it.
	t.Cleanup(srv.Close)
	t.Cleanup(func() { client.Close() })
	return cfg, store, client, logPath
}

func TestIPCStatusAndControls(t *testing.T) {
	_, _, client, _ := startServer(t)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if !status.Running || !status.Queue.IsPaused {
		t.Fatalf("unexpected status %+v", status)
	}

	if _, err := client.SetPaused(false); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}
	if _, err := client.SetRecording(true); err != nil {
		t.Fatalf("SetRecording: %v", err)
	}
	status, err = client.Status()
	if err != nil {
		t.Fatalf("Status RPC failed: %v", err)
	}
	if status.Queue.IsPaused || !status.Queue.IsRecording {
		t.Fatalf("expected resumed and recording, got %+v", status.Queue)
	}
	if _, err := client.SetPaused(true); err != nil {
		t.Fatalf("SetPaused: %v", err)
	}

	notify, err := client.TestNotification()
	if err != nil {
		t.Fatalf("TestNotification: %v", err)
	}
	if notify.Sent || notify.Message != "ntfy topic not configured" {
		t.Fatalf("unexpected notification response %+v", notify)
	}
}

func TestIPCTranscribeAndQueue(t *testing.T) {
	cfg, store, client, _ := startServer(t)
	audio := filepath.Join(cfg.Paths.NotesDir, "2025", "2025-06-01", "120000.wav")
	testsupport.WriteWAV(t, audio, 8000, 0.2)

	resp, err := client.Transcribe(audio)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if resp.Task == nil || resp.Task.Priority != "high" {
		t.Fatalf("unexpected task %+v", resp.Task)
	}

	if _, err := client.Transcribe(filepath.Join(cfg.Paths.NotesDir, "missing.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}

	list, err := client.QueueList([]string{"pending"}, 10)
	if err != nil {
		t.Fatalf("QueueList: %v", err)
	}
	if len(list.Tasks) != 1 || list.Tasks[0].ID != resp.Task.ID {
		t.Fatalf("unexpected tasks %+v", list.Tasks)
	}
	if _, err := client.QueueList([]string{"bogus"}, 10); err == nil {
		t.Fatal("expected error for unknown status")
	}

	described, err := client.QueueDescribe(resp.Task.ID)
	if err != nil || described.Task.TranscriptionID != "20250601120000" {
		t.Fatalf("QueueDescribe: %+v, %v", described, err)
	}

	ctx := context.Background()
	claimed, err := store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	reset, err := client.QueueReset()
	if err != nil || reset.Updated != 1 {
		t.Fatalf("QueueReset: %+v, %v", reset, err)
	}

	claimed, err = store.ClaimNext(ctx)
	if err != nil || claimed == nil {
		t.Fatalf("ClaimNext: %v", err)
	}
	if _, err := store.FailAttempt(ctx, claimed.ID, "decoder crashed", false); err != nil {
		t.Fatalf("FailAttempt: %v", err)
	}
	retry, err := client.QueueRetry([]string{claimed.ID})
	if err != nil || retry.Updated != 1 {
		t.Fatalf("QueueRetry: %+v, %v", retry, err)
	}
	cleared, err := client.QueueClear("failed")
	if err != nil || cleared.Removed != 0 {
		t.Fatalf("QueueClear: %+v, %v", cleared, err)
	}
	if _, err := client.QueueClear("everything"); err == nil {
		t.Fatal("expected error for unknown clear scope")
	}

	health, err := client.DatabaseHealth()
	if err != nil || !health.DatabaseReadable || health.TotalTasks != 1 {
		t.Fatalf("DatabaseHealth: %+v, %v", health, err)
	}
}

func TestIPCSyncRecordsAndEvents(t *testing.T) {
	cfg, _, client, _ := startServer(t)
	day := filepath.Join(cfg.Paths.NotesDir, "2025", "2025-07-01")
	testsupport.WriteWAV(t, filepath.Join(day, "070000.wav"), 8000, 0.2)
	testsupport.WriteText(t, filepath.Join(day, "070000.txt"), "renew the passport before august")
	testsupport.WriteWAV(t, filepath.Join(day, "080000.wav"), 8000, 0.2)
	testsupport.WriteFile(t, filepath.Join(cfg.PendingImportsDir(), "memo.m4a"), 64)

	syncResp, err := client.Sync()
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if syncResp.Queued || syncResp.Report.New != 2 || syncResp.Report.Enqueued != 1 {
		t.Fatalf("unexpected sync report %+v", syncResp)
	}

	scan, err := client.ImportScan()
	if err != nil || scan.Queued != 1 {
		t.Fatalf("ImportScan: %+v, %v", scan, err)
	}

	records, err := client.RecordList(ipc.RecordListRequest{Status: "pending", Limit: 10})
	if err != nil || len(records.Records) != 1 || records.Records[0].ID != "20250701080000" {
		t.Fatalf("RecordList: %+v, %v", records, err)
	}
	if _, err := client.RecordList(ipc.RecordListRequest{Status: "weird"}); err == nil {
		t.Fatal("expected error for unknown record status")
	}

	shown, err := client.RecordShow("20250701070000")
	if err != nil || shown.Record.Text != "renew the passport before august" {
		t.Fatalf("RecordShow: %+v, %v", shown, err)
	}
	if _, err := client.RecordShow("19990101000000"); err == nil {
		t.Fatal("expected not found error")
	}

	hits, err := client.RecordSearch("passport", 5)
	if err != nil || len(hits.Records) != 1 {
		t.Fatalf("RecordSearch: %+v, %v", hits, err)
	}
	stats, err := client.RecordStats()
	if err != nil || stats.Total != 2 || stats.ByStatus["complete"] != 1 {
		t.Fatalf("RecordStats: %+v, %v", stats, err)
	}

	events, err := client.Events(0)
	if err != nil || len(events.Events) == 0 || events.Next != events.Events[len(events.Events)-1].Seq {
		t.Fatalf("Events: %+v, %v", events, err)
	}
	more, err := client.Events(events.Next)
	if err != nil || len(more.Events) != 0 {
		t.Fatalf("expected no newer events: %+v, %v", more, err)
	}
}

func TestIPCLogTail(t *testing.T) {
	_, _, client, logPath := startServer(t)
	if err := os.WriteFile(logPath, []byte("first\nsecond\nthird\n"), 0o644); err != nil {
		t.Fatalf("write log file: %v", err)
	}

	logResp, err := client.LogTail(ipc.LogTailRequest{Offset: -1, Limit: 2})
	if err != nil {
		t.Fatalf("LogTail initial failed: %v", err)
	}
	if len(logResp.Lines) != 2 || logResp.Lines[0] != "second" || logResp.Lines[1] != "third" {
		t.Fatalf("unexpected log tail response: %#v", logResp.Lines)
	}

	followDone := make(chan struct{})
	go func(offset int64) {
		defer close(followDone)
		resp, err := client.LogTail(ipc.LogTailRequest{Offset: offset, Follow: true, WaitMillis: 500})
		if err != nil {
			t.Errorf("LogTail follow error: %v", err)
			return
		}
		if len(resp.Lines) != 1 || resp.Lines[0] != "fourth" {
			t.Errorf("unexpected follow lines: %#v", resp.Lines)
		}
	}(logResp.Offset)

	time.Sleep(100 * time.Millisecond)
	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("append log: %v", err)
	}
	_, _ = f.WriteString("fourth\n")
	_ = f.Close()

	select {
	case <-followDone:
	case <-time.After(10 * time.Second):
		t.Fatal("log tail follow timed out")
	}
}

func TestIPCStopShutsDownDaemon(t *testing.T) {
	_, _, client, _ := startServer(t)
	resp, err := client.Stop()
	if err != nil || !resp.Stopped {
		t.Fatalf("Stop: %+v, %v", resp, err)
	}
	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("expected daemon to report stopped")
	}
}
