package ipc

import (
	"voicenotes/internal/api"
	"voicenotes/internal/logs"
)

// Task mirrors the HTTP API task DTO for IPC callers.
type Task = api.Task

// Record mirrors the HTTP API record DTO for IPC callers.
type Record = api.Record

// StopRequest asks the daemon to shut down.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse is the combined daemon and queue status.
type StatusResponse = api.DaemonStatus

// PauseRequest toggles queue claiming.
type PauseRequest struct {
	Paused bool `json:"paused"`
}

// PauseResponse reports the resulting flag.
type PauseResponse struct {
	Paused bool `json:"paused"`
}

// RecordingRequest sets the live-recording flag.
type RecordingRequest struct {
	Active bool `json:"active"`
}

// RecordingResponse reports the resulting flag.
type RecordingResponse struct {
	Active bool `json:"active"`
}

// TranscribeRequest queues one audio file at high priority.
type TranscribeRequest struct {
	Path string `json:"path"`
}

// TranscribeResponse carries the queued or existing task, if any.
type TranscribeResponse struct {
	Task *Task `json:"task,omitempty"`
}

// SyncRequest triggers an immediate reconciliation pass.
type SyncRequest struct{}

// SyncResponse carries the pass report. Queued is set when the daemon could
// only queue a sync task instead of running it inline.
type SyncResponse struct {
	Report api.SyncReport `json:"report"`
	Queued bool           `json:"queued"`
}

// ImportScanRequest queues files waiting in the imports folder.
type ImportScanRequest struct{}

// ImportScanResponse reports how many imports were queued.
type ImportScanResponse struct {
	Queued int `json:"queued"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
	Limit    int      `json:"limit"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Tasks []Task `json:"tasks"`
}

// QueueDescribeRequest fetches a single task by id.
type QueueDescribeRequest struct {
	ID string `json:"id"`
}

// QueueDescribeResponse contains a single task.
type QueueDescribeResponse struct {
	Task Task `json:"task"`
}

// QueueRetryRequest resets failed tasks. An empty list retries all of them.
type QueueRetryRequest struct {
	IDs []string `json:"ids"`
}

// QueueRetryResponse reports number of updated tasks.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueClearRequest removes finished tasks. Scope is "completed" or "failed".
type QueueClearRequest struct {
	Scope string `json:"scope"`
}

// QueueClearResponse reports number of removed tasks.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest returns processing tasks to pending.
type QueueResetRequest struct{}

// QueueResetResponse reports number of updated tasks.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// DatabaseHealthRequest fetches database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse contains database diagnostics.
type DatabaseHealthResponse = api.DatabaseHealth

// RecordListRequest pages through records, optionally by status.
type RecordListRequest struct {
	Status string `json:"status"`
	Limit  int    `json:"limit"`
	Offset int    `json:"offset"`
}

// RecordListResponse contains records.
type RecordListResponse struct {
	Records []Record `json:"records"`
}

// RecordShowRequest fetches one record.
type RecordShowRequest struct {
	ID string `json:"id"`
}

// RecordShowResponse contains a single record.
type RecordShowResponse struct {
	Record Record `json:"record"`
}

// RecordSearchRequest searches transcripts.
type RecordSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

// RecordSearchResponse contains ranked matches.
type RecordSearchResponse struct {
	Records []Record `json:"records"`
}

// RecordStatsRequest fetches record totals.
type RecordStatsRequest struct{}

// RecordStatsResponse contains record totals.
type RecordStatsResponse = api.RecordStats

// EventsRequest fetches event history after a sequence number.
type EventsRequest struct {
	Since int64 `json:"since"`
}

// EventsResponse contains events and the cursor for the next call.
type EventsResponse struct {
	Events []api.Event `json:"events"`
	Next   int64       `json:"next"`
}

// LogTailRequest reads lines from the daemon log. Level, TaskID and
// TranscriptionID filter JSON lines.
type LogTailRequest struct {
	Offset          int64  `json:"offset"`
	Limit           int    `json:"limit"`
	Follow          bool   `json:"follow"`
	WaitMillis      int    `json:"wait_millis"`
	Level           string `json:"level,omitempty"`
	TaskID          string `json:"task_id,omitempty"`
	TranscriptionID string `json:"transcription_id,omitempty"`
}

// LogFilter converts the request filters for logs.Tail.
func (r LogTailRequest) LogFilter() logs.Filter {
	return logs.Filter{MinLevel: r.Level, TaskID: r.TaskID, TranscriptionID: r.TranscriptionID}
}

// LogTailResponse contains log lines and the next offset.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest sends a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
