package queue

import (
	"strings"
	"time"
)

// TaskStatus represents the lifecycle of a background task.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskProcessing TaskStatus = "processing"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// RecordStatus represents the resolution state of a transcription record.
type RecordStatus string

const (
	RecordPending    RecordStatus = "pending"
	RecordProcessing RecordStatus = "processing"
	RecordComplete   RecordStatus = "complete"
	RecordFailed     RecordStatus = "failed"
	RecordOrphaned   RecordStatus = "orphaned"
)

// Source records how an audio file entered the system.
type Source string

const (
	SourceRecording Source = "recording"
	SourceImport    Source = "import"
	SourceOrphan    Source = "orphan"
)

// Priority orders task claims. Higher values are claimed first.
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 1
	PriorityHigh   Priority = 2
)

// Default record metadata.
const (
	DefaultLanguage = "en"
	DefaultModel    = "base.en"
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ParsePriority converts a user supplied label into a Priority.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow, true
	case "normal", "":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	default:
		return PriorityNormal, false
	}
}

var allTaskStatuses = []TaskStatus{TaskProcessing, TaskPending, TaskFailed, TaskCompleted}

// AllTaskStatuses returns task statuses in display order.
func AllTaskStatuses() []TaskStatus {
	return append([]TaskStatus(nil), allTaskStatuses...)
}

// ParseTaskStatus converts a string into a known TaskStatus.
func ParseTaskStatus(value string) (TaskStatus, bool) {
	normalized := TaskStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allTaskStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

var allRecordStatuses = []RecordStatus{RecordPending, RecordProcessing, RecordComplete, RecordFailed, RecordOrphaned}

// ParseRecordStatus converts a string into a known RecordStatus.
func ParseRecordStatus(value string) (RecordStatus, bool) {
	normalized := RecordStatus(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allRecordStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// Unresolved reports whether the record still needs transcription work.
func (s RecordStatus) Unresolved() bool {
	return s != RecordComplete
}

// Record is one audio file known to the system.
type Record struct {
	ID              string
	AudioPath       string
	TextPath        string
	Text            string
	CreatedAt       time.Time
	TranscribedAt   *time.Time
	DurationSeconds float64
	FileSizeBytes   int64
	Language        string
	Model           string
	Status          RecordStatus
	Source          Source
	ErrorMessage    string
	Missing         bool
	MetadataJSON    string
	UpdatedAt       time.Time
}

// Task is a durable unit of background work.
type Task struct {
	ID              string
	TranscriptionID string
	Type            TaskType
	Payload         Payload
	Priority        Priority
	Status          TaskStatus
	RetryCount      int
	MaxRetries      int
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	ErrorMessage    string
	LastHeartbeat   *time.Time
}

// TranscriptionResult is what a successful transcription writes back.
type TranscriptionResult struct {
	Text            string
	TextPath        string
	Language        string
	Model           string
	DurationSeconds float64
}

// QueueCounts aggregates task totals per status.
type QueueCounts struct {
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Total      int
}

// RecordStats summarizes the record table.
type RecordStats struct {
	Total           int
	TotalBytes      int64
	TotalSeconds    float64
	Missing         int
	ByStatus        map[RecordStatus]int
	OldestCreatedAt *time.Time
	NewestCreatedAt *time.Time
}

// DatabaseHealth captures diagnostic information about the database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    int
	TablesPresent    []string
	MissingTables    []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecords     int
	TotalTasks       int
	Error            string
}
