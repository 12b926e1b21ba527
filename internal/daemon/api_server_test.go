package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"voicenotes/internal/api"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
	"voicenotes/internal/testsupport"
	"voicenotes/internal/workflow"
)

func newTestAPIServer(t *testing.T, token string) (*apiServer, *queue.Store, *notifications.EventBus) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.API.Bind = "127.0.0.1:0"
	cfg.API.Token = token
	store := testsupport.MustOpenStore(t, cfg)
	events := notifications.NewEventBus(10)
	mgr := workflow.NewManager(cfg, store, logging.NewNop(), events)
	d, err := New(cfg, store, logging.NewNop(), mgr, Options{Events: events})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if d.apiServer == nil {
		t.Fatal("expected api server when api.bind is set")
	}
	return d.apiServer, store, events
}

func serve(t *testing.T, srv *apiServer, token, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	srv.routes(srv.daemon.cfg.API.Token).ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode %s: %v", w.Body.String(), err)
	}
}

func TestAPIServerDisabledWithoutBind(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	srv, err := newAPIServer(cfg, &Daemon{}, logging.NewNop())
	if err != nil || srv != nil {
		t.Fatalf("expected no server, got %v, %v", srv, err)
	}
	// nil servers are safe to start and stop
	if err := srv.start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	srv.stop()
}

func TestAPIServerRequiresToken(t *testing.T) {
	srv, _, _ := newTestAPIServer(t, "secret")

	if w := serve(t, srv, "", "/api/status"); w.Code != http.StatusUnauthorized || w.Header().Get("WWW-Authenticate") == "" {
		t.Fatalf("expected 401 challenge without token, got %d", w.Code)
	}
	if w := serve(t, srv, "wrong", "/api/status"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}
	w := serve(t, srv, "secret", "/api/status")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected a generated request id")
	}
	var status api.DaemonStatus
	decode(t, w, &status)
	if status.Running || status.NotesDir == "" {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestAPIServerEchoesRequestID(t *testing.T) {
	srv, _, _ := newTestAPIServer(t, "")
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	req.Header.Set(requestIDHeader, "gui-poll-7")
	w := httptest.NewRecorder()
	srv.routes("").ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "gui-poll-7" {
		t.Fatalf("expected caller request id echoed, got %q", got)
	}
}

func TestAPIServerHandleQueue(t *testing.T) {
	srv, store, _ := newTestAPIServer(t, "")
	task := testsupport.Enqueue(t, store, "20250101090000", queue.TranscribeOrphan{AudioPath: "2025/2025-01-01/090000.wav"}, queue.PriorityNormal, 3)

	w := serve(t, srv, "", "/api/queue?status=pending")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 OK, got %d", w.Code)
	}
	var list struct {
		Tasks []api.Task `json:"tasks"`
	}
	decode(t, w, &list)
	if len(list.Tasks) != 1 || list.Tasks[0].AudioPath != "2025/2025-01-01/090000.wav" {
		t.Fatalf("unexpected tasks %+v", list.Tasks)
	}

	if w := serve(t, srv, "", "/api/queue?status=bogus"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown status, got %d", w.Code)
	}

	w = serve(t, srv, "", "/api/queue/"+task.ID)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for task, got %d", w.Code)
	}
	var one struct {
		Task api.Task `json:"task"`
	}
	decode(t, w, &one)
	if one.Task.ID != task.ID || one.Task.Priority != "normal" {
		t.Fatalf("unexpected task %+v", one.Task)
	}
	if w := serve(t, srv, "", "/api/queue/missing"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAPIServerRecordsAndSearch(t *testing.T) {
	srv, store, _ := newTestAPIServer(t, "")
	ctx := context.Background()
	for _, rec := range []*queue.Record{
		{ID: "20250201080000", AudioPath: "2025/2025-02-01/080000.wav", Status: queue.RecordComplete, Source: queue.SourceRecording, Text: "call the plumber about the sink", CreatedAt: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC)},
		{ID: "20250202080000", AudioPath: "2025/2025-02-02/080000.wav", Status: queue.RecordPending, Source: queue.SourceRecording, CreatedAt: time.Date(2025, 2, 2, 8, 0, 0, 0, time.UTC)},
	} {
		if err := store.PutRecord(ctx, rec); err != nil {
			t.Fatalf("PutRecord: %v", err)
		}
	}

	var list struct {
		Records []api.Record `json:"records"`
	}
	decode(t, serve(t, srv, "", "/api/records?status=complete"), &list)
	if len(list.Records) != 1 || list.Records[0].ID != "20250201080000" {
		t.Fatalf("unexpected records %+v", list.Records)
	}

	w := serve(t, srv, "", "/api/records/20250202080000")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if w := serve(t, srv, "", "/api/records/nope"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	if w := serve(t, srv, "", "/api/search"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without query, got %d", w.Code)
	}
	list.Records = nil
	decode(t, serve(t, srv, "", "/api/search?q=plumber"), &list)
	if len(list.Records) != 1 || list.Records[0].Score <= 0 {
		t.Fatalf("unexpected search hits %+v", list.Records)
	}
}

func TestAPIServerEventsSince(t *testing.T) {
	srv, _, events := newTestAPIServer(t, "")
	first := events.Append(notifications.EventTaskClaimed, notifications.Payload{"task_id": "a"})
	events.Append(notifications.EventTaskCompleted, notifications.Payload{"task_id": "a"})

	var resp struct {
		Events []api.Event `json:"events"`
		Next   int64       `json:"next"`
	}
	decode(t, serve(t, srv, "", "/api/events?since="+strconv.FormatInt(first.Seq, 10)), &resp)
	if len(resp.Events) != 1 || resp.Events[0].Event != "task_completed" || resp.Next != first.Seq+1 {
		t.Fatalf("unexpected events %+v", resp)
	}
}

func TestAPIServerRejectsWrites(t *testing.T) {
	srv, _, _ := newTestAPIServer(t, "")
	req := httptest.NewRequest(http.MethodPost, "/api/queue", nil)
	w := httptest.NewRecorder()
	srv.routes("").ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", w.Code)
	}
}
