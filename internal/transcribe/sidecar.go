package transcribe

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"voicenotes/internal/identity"
)

// Sidecar is the JSON metadata stored next to a transcribed audio file.
type Sidecar struct {
	Language        string    `json:"language,omitempty"`
	DurationSeconds float64   `json:"duration_seconds,omitempty"`
	TranscribedAt   time.Time `json:"transcribed_at"`
	Model           string    `json:"model,omitempty"`
}

// WriteOutputs stores the transcript and sidecar beside audioPath and returns
// the transcript path. Files are written through a temp file and renamed so a
// reader never sees a partial transcript.
func WriteOutputs(audioPath string, result Result, transcribedAt time.Time) (string, error) {
	textPath := identity.TextPath(audioPath)
	if err := writeAtomic(textPath, []byte(result.Text+"\n")); err != nil {
		return "", fmt.Errorf("write transcript: %w", err)
	}
	sidecar := Sidecar{
		Language:        result.Language,
		DurationSeconds: result.DurationSeconds,
		TranscribedAt:   transcribedAt.UTC(),
		Model:           result.Model,
	}
	data, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode sidecar: %w", err)
	}
	if err := writeAtomic(identity.SidecarPath(audioPath), append(data, '\n')); err != nil {
		return "", fmt.Errorf("write sidecar: %w", err)
	}
	return textPath, nil
}

// ReadSidecar loads the sidecar for audioPath. A missing file returns
// os.ErrNotExist.
func ReadSidecar(audioPath string) (Sidecar, []byte, error) {
	data, err := os.ReadFile(identity.SidecarPath(audioPath))
	if err != nil {
		return Sidecar{}, nil, err
	}
	var sidecar Sidecar
	if err := json.Unmarshal(data, &sidecar); err != nil {
		return Sidecar{}, data, fmt.Errorf("decode sidecar: %w", err)
	}
	return sidecar, data, nil
}

// HasSidecar reports whether a sidecar file exists for audioPath.
func HasSidecar(audioPath string) bool {
	_, err := os.Stat(identity.SidecarPath(audioPath))
	return err == nil || !errors.Is(err, os.ErrNotExist)
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
