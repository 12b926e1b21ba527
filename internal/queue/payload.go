package queue

import (
	"encoding/json"
	"fmt"
	"strings"
)

// TaskType tags the payload variant carried by a task.
type TaskType string

const (
	TaskTranscribeOrphan   TaskType = "transcribe_orphan"
	TaskTranscribeImported TaskType = "transcribe_imported"
	TaskFileSystemSync     TaskType = "filesystem_sync"
	TaskProcessImport      TaskType = "process_import"
)

// SyncTaskKey is the transcription_id used by filesystem sync tasks so at
// most one unresolved sync exists at a time.
const SyncTaskKey = "sync"

// ImportTaskKey returns the dedup key for a pending import file.
func ImportTaskKey(relPath string) string {
	return "import:" + relPath
}

// Payload is implemented by every task variant.
type Payload interface {
	TaskType() TaskType
}

// TranscribeOrphan transcribes an audio file found on disk without text.
type TranscribeOrphan struct {
	AudioPath  string `json:"audio_path"`
	OutputPath string `json:"output_path"`
}

// TranscribeImported transcribes a file moved in from the imports folder.
type TranscribeImported struct {
	AudioPath    string `json:"audio_path"`
	OriginalName string `json:"original_name"`
}

// FileSystemSync reconciles the record table with the notes tree.
type FileSystemSync struct {
	FullScan bool `json:"full_scan"`
}

// ProcessImport files a pending import into the notes tree.
type ProcessImport struct {
	ImportPath string `json:"import_path"`
	TargetDir  string `json:"target_dir"`
}

func (TranscribeOrphan) TaskType() TaskType   { return TaskTranscribeOrphan }
func (TranscribeImported) TaskType() TaskType { return TaskTranscribeImported }
func (FileSystemSync) TaskType() TaskType     { return TaskFileSystemSync }
func (ProcessImport) TaskType() TaskType      { return TaskProcessImport }

// IsTranscription reports whether tasks of this type resolve a record.
func (t TaskType) IsTranscription() bool {
	return t == TaskTranscribeOrphan || t == TaskTranscribeImported
}

// AudioPath returns the audio file a transcription payload refers to.
func AudioPath(p Payload) string {
	switch v := p.(type) {
	case TranscribeOrphan:
		return v.AudioPath
	case TranscribeImported:
		return v.AudioPath
	case ProcessImport:
		return v.ImportPath
	default:
		return ""
	}
}

func encodePayload(p Payload) (TaskType, string, error) {
	if p == nil {
		return "", "", fmt.Errorf("encode payload: %w", ErrInvalidPayload)
	}
	data, err := json.Marshal(p)
	if err != nil {
		return "", "", fmt.Errorf("encode %s payload: %w", p.TaskType(), err)
	}
	return p.TaskType(), string(data), nil
}

// DecodePayload parses a stored payload for the given task type.
func DecodePayload(taskType TaskType, raw string) (Payload, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		raw = "{}"
	}
	var (
		payload Payload
		err     error
	)
	switch taskType {
	case TaskTranscribeOrphan:
		var v TranscribeOrphan
		err = json.Unmarshal([]byte(raw), &v)
		payload = v
	case TaskTranscribeImported:
		var v TranscribeImported
		err = json.Unmarshal([]byte(raw), &v)
		payload = v
	case TaskFileSystemSync:
		var v FileSystemSync
		err = json.Unmarshal([]byte(raw), &v)
		payload = v
	case TaskProcessImport:
		var v ProcessImport
		err = json.Unmarshal([]byte(raw), &v)
		payload = v
	default:
		return nil, fmt.Errorf("%w: unknown task type %q", ErrInvalidPayload, taskType)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidPayload, taskType, err)
	}
	return payload, nil
}
