package transcribe

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"voicenotes/internal/testsupport"
)

func TestWriteOutputsAndReadSidecar(t *testing.T) {
	audioPath := filepath.Join(t.TempDir(), "160626-voice-note.wav")
	testsupport.WriteFile(t, audioPath, 128)
	if HasSidecar(audioPath) {
		t.Fatal("unexpected sidecar before write")
	}

	at := time.Date(2025, 8, 10, 16, 10, 0, 0, time.UTC)
	textPath, err := WriteOutputs(audioPath, Result{Text: "buy milk", Language: "en", DurationSeconds: 3.2, Model: "base.en"}, at)
	if err != nil {
		t.Fatalf("WriteOutputs: %v", err)
	}
	if textPath != filepath.Join(filepath.Dir(audioPath), "160626-voice-note.txt") {
		t.Fatalf("text path = %q", textPath)
	}
	data, err := os.ReadFile(textPath)
	if err != nil || string(data) != "buy milk\n" {
		t.Fatalf("transcript = %q, %v", data, err)
	}

	sidecar, raw, err := ReadSidecar(audioPath)
	if err != nil {
		t.Fatalf("ReadSidecar: %v", err)
	}
	if len(raw) == 0 || !HasSidecar(audioPath) {
		t.Fatal("expected sidecar on disk")
	}
	if sidecar.Language != "en" || sidecar.Model != "base.en" || !sidecar.TranscribedAt.Equal(at) {
		t.Fatalf("unexpected sidecar: %+v", sidecar)
	}

	entries, err := os.ReadDir(filepath.Dir(audioPath))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected audio, text and sidecar only, got %d entries", len(entries))
	}
}
