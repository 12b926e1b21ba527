package queue

import (
	"database/sql"
	"errors"
	"strings"
	"time"
)

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const recordColumns = "id, audio_path, text_path, transcription_text, created_at, transcribed_at, duration_seconds, file_size_bytes, language, model, status, source, error_message, missing, metadata_json, updated_at"

const taskColumns = "id, transcription_id, task_type, payload, priority, status, retry_count, max_retries, created_at, started_at, completed_at, error_message, last_heartbeat"

type rowScanner interface{ Scan(dest ...any) error }

func scanRecord(scanner rowScanner) (*Record, error) {
	var (
		rec          Record
		textPath     sql.NullString
		text         sql.NullString
		createdRaw   string
		transcribed  sql.NullString
		status       string
		source       string
		errorMessage sql.NullString
		missing      int
		metadata     sql.NullString
		updatedRaw   string
	)
	if err := scanner.Scan(
		&rec.ID,
		&rec.AudioPath,
		&textPath,
		&text,
		&createdRaw,
		&transcribed,
		&rec.DurationSeconds,
		&rec.FileSizeBytes,
		&rec.Language,
		&rec.Model,
		&status,
		&source,
		&errorMessage,
		&missing,
		&metadata,
		&updatedRaw,
	); err != nil {
		return nil, err
	}
	rec.TextPath = textPath.String
	rec.Text = text.String
	rec.Status = RecordStatus(status)
	rec.Source = Source(source)
	rec.ErrorMessage = errorMessage.String
	rec.Missing = missing != 0
	rec.MetadataJSON = metadata.String
	if created, err := parseTimeString(createdRaw); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		rec.UpdatedAt = updated
	}
	rec.TranscribedAt = parseNullableTime(transcribed)
	return &rec, nil
}

func scanTask(scanner rowScanner) (*Task, error) {
	var (
		task         Task
		taskType     string
		payload      string
		priority     int
		status       string
		createdRaw   string
		startedRaw   sql.NullString
		completedRaw sql.NullString
		errorMessage sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&task.ID,
		&task.TranscriptionID,
		&taskType,
		&payload,
		&priority,
		&status,
		&task.RetryCount,
		&task.MaxRetries,
		&createdRaw,
		&startedRaw,
		&completedRaw,
		&errorMessage,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}
	task.Type = TaskType(taskType)
	task.Priority = Priority(priority)
	task.Status = TaskStatus(status)
	task.ErrorMessage = errorMessage.String
	if created, err := parseTimeString(createdRaw); err == nil {
		task.CreatedAt = created
	}
	task.StartedAt = parseNullableTime(startedRaw)
	task.CompletedAt = parseNullableTime(completedRaw)
	task.LastHeartbeat = parseNullableTime(heartbeatRaw)

	decoded, err := DecodePayload(task.Type, payload)
	if err != nil {
		// Keep the row visible to listings; the worker fails it permanently.
		task.Payload = nil
		task.ErrorMessage = err.Error()
		return &task, nil
	}
	task.Payload = decoded
	return &task, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil || value.IsZero() {
		return nil
	}
	return formatTime(*value)
}

func formatTime(value time.Time) string {
	return value.UTC().Format(timeLayout)
}

func nowString() string {
	return formatTime(time.Now())
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func parseNullableTime(value sql.NullString) *time.Time {
	if !value.Valid {
		return nil
	}
	parsed, err := parseTimeString(value.String)
	if err != nil {
		return nil
	}
	return &parsed
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", count), ",")
}

// escapeLike escapes LIKE wildcards so user text matches literally.
func escapeLike(value string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(value)
}
