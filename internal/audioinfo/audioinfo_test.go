package audioinfo_test

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"voicenotes/internal/audioinfo"
	"voicenotes/internal/testsupport"
)

func TestProbeWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "160626-voice-note.wav")
	testsupport.WriteWAV(t, path, 16000, 2.5)

	info, err := audioinfo.Probe(path)
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if math.Abs(info.DurationSeconds-2.5) > 0.01 {
		t.Fatalf("duration = %v, want 2.5", info.DurationSeconds)
	}
	if info.SampleRate != 16000 || info.Channels != 1 {
		t.Fatalf("unexpected format: %+v", info)
	}
	if info.SizeBytes <= 0 {
		t.Fatalf("expected size, got %d", info.SizeBytes)
	}
}

func TestProbeOtherFormatsKeepSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memo.m4a")
	testsupport.WriteFile(t, path, 2048)

	info, err := audioinfo.Probe(path)
	if !errors.Is(err, audioinfo.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
	if info.SizeBytes != 2048 {
		t.Fatalf("size = %d", info.SizeBytes)
	}
}

func TestProbeCorruptWAV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.wav")
	testsupport.WriteFile(t, path, 64)

	if _, err := audioinfo.Probe(path); err == nil {
		t.Fatal("expected error for corrupt wav")
	}
	if got := audioinfo.Duration(path); got != 0 {
		t.Fatalf("Duration = %v, want 0", got)
	}
}
