package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Task describes a background task in a transport-friendly format.
type Task struct {
	ID              string          `json:"id"`
	TranscriptionID string          `json:"transcriptionId"`
	Type            string          `json:"type"`
	Status          string          `json:"status"`
	Priority        string          `json:"priority"`
	RetryCount      int             `json:"retryCount"`
	MaxRetries      int             `json:"maxRetries"`
	AudioPath       string          `json:"audioPath,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	StartedAt       string          `json:"startedAt,omitempty"`
	CompletedAt     string          `json:"completedAt,omitempty"`
	LastHeartbeat   string          `json:"lastHeartbeat,omitempty"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// Record describes one transcription record.
type Record struct {
	ID              string          `json:"id"`
	AudioPath       string          `json:"audioPath"`
	TextPath        string          `json:"textPath,omitempty"`
	Text            string          `json:"text,omitempty"`
	Status          string          `json:"status"`
	Source          string          `json:"source"`
	Missing         bool            `json:"missing"`
	DurationSeconds float64         `json:"durationSeconds,omitempty"`
	FileSizeBytes   int64           `json:"fileSizeBytes"`
	Language        string          `json:"language,omitempty"`
	Model           string          `json:"model,omitempty"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	TranscribedAt   string          `json:"transcribedAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	Score           float64         `json:"score,omitempty"`
}

// QueueStatus summarizes worker state and queue totals.
type QueueStatus struct {
	Running      bool   `json:"running"`
	IsPaused     bool   `json:"isPaused"`
	IsProcessing bool   `json:"isProcessing"`
	IsRecording  bool   `json:"isRecording"`
	ActiveTask   *Task  `json:"activeTask,omitempty"`
	Pending      int    `json:"pending"`
	Processing   int    `json:"processing"`
	Completed    int    `json:"completed"`
	Failed       int    `json:"failed"`
	Total        int    `json:"total"`
	LastError    string `json:"lastError,omitempty"`
}

// ScheduleEntry describes a scheduled maintenance job.
type ScheduleEntry struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Next     string `json:"next,omitempty"`
	Prev     string `json:"prev,omitempty"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Version     string `json:"version,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	StartedAt    string             `json:"startedAt,omitempty"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	LogPath      string             `json:"logPath,omitempty"`
	NotesDir     string             `json:"notesDir"`
	Watching     bool               `json:"watching"`
	LastEventSeq int64              `json:"lastEventSeq"`
	Queue        QueueStatus        `json:"queue"`
	Schedule     []ScheduleEntry    `json:"schedule,omitempty"`
	Dependencies []DependencyStatus `json:"dependencies,omitempty"`
}

// RecordStats summarizes the record table.
type RecordStats struct {
	Total           int            `json:"total"`
	TotalBytes      int64          `json:"totalBytes"`
	TotalSeconds    float64        `json:"totalSeconds"`
	Missing         int            `json:"missing"`
	ByStatus        map[string]int `json:"byStatus"`
	OldestCreatedAt string         `json:"oldestCreatedAt,omitempty"`
	NewestCreatedAt string         `json:"newestCreatedAt,omitempty"`
}

// DatabaseHealth reports database diagnostics.
type DatabaseHealth struct {
	DBPath           string   `json:"dbPath"`
	DatabaseExists   bool     `json:"databaseExists"`
	DatabaseReadable bool     `json:"databaseReadable"`
	SchemaVersion    int      `json:"schemaVersion"`
	TablesPresent    []string `json:"tablesPresent,omitempty"`
	MissingTables    []string `json:"missingTables,omitempty"`
	MissingColumns   []string `json:"missingColumns,omitempty"`
	IntegrityCheck   bool     `json:"integrityCheck"`
	TotalRecords     int      `json:"totalRecords"`
	TotalTasks       int      `json:"totalTasks"`
	Error            string   `json:"error,omitempty"`
}

// SyncReport summarizes a reconciliation pass.
type SyncReport struct {
	Scanned    int      `json:"scanned"`
	New        int      `json:"new"`
	Updated    int      `json:"updated"`
	Missing    int      `json:"missing"`
	Enqueued   int      `json:"enqueued"`
	Errors     []string `json:"errors,omitempty"`
	StartedAt  string   `json:"startedAt,omitempty"`
	DurationMS int64    `json:"durationMs"`
}

// Event is one entry from the daemon event history.
type Event struct {
	Seq       int64          `json:"seq"`
	Timestamp string         `json:"timestamp"`
	Event     string         `json:"event"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// StatusLine is one labelled readiness line in status output.
type StatusLine struct {
	Label    string `json:"label"`
	Severity string `json:"severity"`
	Detail   string `json:"detail"`
}

// DependencySummary aggregates dependency availability.
type DependencySummary struct {
	Total           int    `json:"total"`
	Available       int    `json:"available"`
	MissingRequired int    `json:"missingRequired"`
	MissingOptional int    `json:"missingOptional"`
	Severity        string `json:"severity"`
	Detail          string `json:"detail"`
}
