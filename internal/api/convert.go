package api

import (
	"encoding/json"
	"sort"
	"time"

	"voicenotes/internal/deps"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/workflow"
)

// FormatTime renders t in the API timestamp format; zero values are empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// ParseTime parses an API timestamp, returning the zero time on failure.
func ParseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	return time.Time{}
}

// FromTask converts a queue task to its API representation.
func FromTask(task *queue.Task) Task {
	if task == nil {
		return Task{}
	}
	dto := Task{
		ID:              task.ID,
		TranscriptionID: task.TranscriptionID,
		Type:            string(task.Type),
		Status:          string(task.Status),
		Priority:        task.Priority.String(),
		RetryCount:      task.RetryCount,
		MaxRetries:      task.MaxRetries,
		AudioPath:       queue.AudioPath(task.Payload),
		ErrorMessage:    task.ErrorMessage,
		CreatedAt:       FormatTime(task.CreatedAt),
		StartedAt:       formatTimePtr(task.StartedAt),
		CompletedAt:     formatTimePtr(task.CompletedAt),
		LastHeartbeat:   formatTimePtr(task.LastHeartbeat),
	}
	if task.Payload != nil {
		if raw, err := json.Marshal(task.Payload); err == nil {
			dto.Payload = raw
		}
	}
	return dto
}

// FromTasks converts a slice of tasks.
func FromTasks(tasks []*queue.Task) []Task {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]Task, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromRecord converts a record to its API representation.
func FromRecord(rec *queue.Record) Record {
	if rec == nil {
		return Record{}
	}
	dto := Record{
		ID:              rec.ID,
		AudioPath:       rec.AudioPath,
		TextPath:        rec.TextPath,
		Text:            rec.Text,
		Status:          string(rec.Status),
		Source:          string(rec.Source),
		Missing:         rec.Missing,
		DurationSeconds: rec.DurationSeconds,
		FileSizeBytes:   rec.FileSizeBytes,
		Language:        rec.Language,
		Model:           rec.Model,
		ErrorMessage:    rec.ErrorMessage,
		CreatedAt:       FormatTime(rec.CreatedAt),
		TranscribedAt:   formatTimePtr(rec.TranscribedAt),
		UpdatedAt:       FormatTime(rec.UpdatedAt),
	}
	if raw := rec.MetadataJSON; raw != "" && json.Valid([]byte(raw)) {
		dto.Metadata = json.RawMessage(raw)
	}
	return dto
}

// FromRecords converts a slice of records.
func FromRecords(records []*queue.Record) []Record {
	if len(records) == 0 {
		return nil
	}
	out := make([]Record, 0, len(records))
	for _, rec := range records {
		out = append(out, FromRecord(rec))
	}
	return out
}

// FromQueueStatus converts the workflow snapshot.
func FromQueueStatus(status workflow.QueueStatus) QueueStatus {
	dto := QueueStatus{
		Running:      status.Running,
		IsPaused:     status.IsPaused,
		IsProcessing: status.IsProcessing,
		IsRecording:  status.IsRecording,
		Pending:      status.Pending,
		Processing:   status.Processing,
		Completed:    status.Completed,
		Failed:       status.Failed,
		Total:        status.Total,
		LastError:    status.LastError,
	}
	if status.ActiveTask != nil {
		active := FromTask(status.ActiveTask)
		dto.ActiveTask = &active
	}
	return dto
}

// FromQueueCounts builds a status snapshot from counts alone, as seen by a
// client reading the database while the daemon is down.
func FromQueueCounts(counts queue.QueueCounts) QueueStatus {
	return QueueStatus{
		Pending:    counts.Pending,
		Processing: counts.Processing,
		Completed:  counts.Completed,
		Failed:     counts.Failed,
		Total:      counts.Total,
	}
}

// FromRecordStats converts record statistics.
func FromRecordStats(stats queue.RecordStats) RecordStats {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	return RecordStats{
		Total:           stats.Total,
		TotalBytes:      stats.TotalBytes,
		TotalSeconds:    stats.TotalSeconds,
		Missing:         stats.Missing,
		ByStatus:        byStatus,
		OldestCreatedAt: formatTimePtr(stats.OldestCreatedAt),
		NewestCreatedAt: formatTimePtr(stats.NewestCreatedAt),
	}
}

// FromDatabaseHealth converts database diagnostics.
func FromDatabaseHealth(h queue.DatabaseHealth) DatabaseHealth {
	return DatabaseHealth{
		DBPath:           h.DBPath,
		DatabaseExists:   h.DatabaseExists,
		DatabaseReadable: h.DatabaseReadable,
		SchemaVersion:    h.SchemaVersion,
		TablesPresent:    h.TablesPresent,
		MissingTables:    h.MissingTables,
		MissingColumns:   h.MissingColumns,
		IntegrityCheck:   h.IntegrityCheck,
		TotalRecords:     h.TotalRecords,
		TotalTasks:       h.TotalTasks,
		Error:            h.Error,
	}
}

// FromSyncReport converts a reconciliation report.
func FromSyncReport(r reconcile.SyncReport) SyncReport {
	return SyncReport{
		Scanned:    r.Scanned,
		New:        r.New,
		Updated:    r.Updated,
		Missing:    r.Missing,
		Enqueued:   r.Enqueued,
		Errors:     r.Errors,
		StartedAt:  FormatTime(r.StartedAt),
		DurationMS: r.Duration.Milliseconds(),
	}
}

// FromEvents converts event bus records.
func FromEvents(records []notifications.Record) []Event {
	if len(records) == 0 {
		return nil
	}
	out := make([]Event, 0, len(records))
	for _, rec := range records {
		out = append(out, Event{
			Seq:       rec.Seq,
			Timestamp: FormatTime(rec.Timestamp),
			Event:     string(rec.Event),
			Payload:   rec.Payload,
		})
	}
	return out
}

// StatusCounts flattens a QueueStatus into counts keyed by task status.
func StatusCounts(status QueueStatus) map[string]int {
	return map[string]int{
		string(queue.TaskPending):    status.Pending,
		string(queue.TaskProcessing): status.Processing,
		string(queue.TaskCompleted):  status.Completed,
		string(queue.TaskFailed):     status.Failed,
	}
}

// SortedStatuses returns the keys of counts in display order.
func SortedStatuses(counts map[string]int) []string {
	order := map[string]int{}
	for i, status := range queue.AllTaskStatuses() {
		order[string(status)] = i
	}
	keys := make([]string, 0, len(counts))
	for key := range counts {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, iok := order[keys[i]]
		oj, jok := order[keys[j]]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		default:
			return keys[i] < keys[j]
		}
	})
	return keys
}

// FromDependencies converts dependency probe results for status output.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, 0, len(statuses))
	for _, st := range statuses {
		out = append(out, DependencyStatus{
			Name:        st.Name,
			Command:     st.Command,
			Description: st.Description,
			Optional:    st.Optional,
			Available:   st.Available,
			Version:     st.Version,
			Detail:      st.Detail,
		})
	}
	return out
}
