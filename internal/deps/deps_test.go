package deps

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestCheckBinaries(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	script := []byte("#!/bin/sh\necho\necho 'present 1.4.2'\n")
	if err := os.WriteFile(present, script, 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	reqs := []Requirement{
		{Name: "Whisper", Command: present, Description: "speech to text", VersionArgs: []string{"--version"}},
		{Name: "FFmpeg", Command: "clearly-not-present-binary", Optional: true},
		{Name: "Blank", Command: "   "},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}

	first := results[0]
	if !first.Available || first.Detail != "" || first.Description != "speech to text" {
		t.Fatalf("unexpected status for present binary: %#v", first)
	}
	if runtime.GOOS != "windows" && first.Version != "present 1.4.2" {
		t.Fatalf("expected probed version, got %q", first.Version)
	}

	missing := results[1]
	if missing.Available || missing.Detail == "" || !missing.Optional {
		t.Fatalf("unexpected status for missing binary: %#v", missing)
	}
	if missing.Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", missing.Command)
	}

	if blank := results[2]; blank.Available || blank.Detail != "command not configured" {
		t.Fatalf("unexpected status for blank command: %#v", blank)
	}
}

func TestProbeVersionIgnoresFailingBinary(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs need a POSIX shell")
	}
	stub := filepath.Join(t.TempDir(), "broken")
	if err := os.WriteFile(stub, []byte("#!/bin/sh\nexit 3\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	if got := probeVersion(context.Background(), stub, []string{"-version"}); got != "" {
		t.Fatalf("expected empty version, got %q", got)
	}
}

func TestResolveFFmpegPrefersWhisperSibling(t *testing.T) {
	tmp := t.TempDir()
	whisperPath := filepath.Join(tmp, executableName("whisper-cli"))
	ffmpegPath := filepath.Join(tmp, executableName("ffmpeg"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(whisperPath, script, 0o755); err != nil {
		t.Fatalf("write whisper stub: %v", err)
	}
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg sibling: %v", err)
	}

	status := ResolveFFmpeg("ffmpeg", whisperPath)
	if !status.Available {
		t.Fatalf("expected ffmpeg sibling to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
}

func TestResolveFFmpegPathFallback(t *testing.T) {
	tmp := t.TempDir()
	whisperPath := filepath.Join(tmp, executableName("whisper-cli"))
	script := []byte("#!/bin/sh\nexit 0\n")
	if err := os.WriteFile(whisperPath, script, 0o755); err != nil {
		t.Fatalf("write whisper stub: %v", err)
	}

	binDir := filepath.Join(tmp, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	if err := os.WriteFile(ffmpegPath, script, 0o755); err != nil {
		t.Fatalf("write ffmpeg stub: %v", err)
	}
	oldPath := os.Getenv("PATH")
	newPath := binDir
	if oldPath != "" {
		newPath = binDir + string(os.PathListSeparator) + oldPath
	}
	t.Setenv("PATH", newPath)

	status := ResolveFFmpeg("", whisperPath)
	if !status.Available {
		t.Fatalf("expected ffmpeg fallback to be available, got detail %q", status.Detail)
	}
	if status.Command != ffmpegPath {
		t.Fatalf("expected ffmpeg command %q, got %q", ffmpegPath, status.Command)
	}
}

func TestResolveFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := ResolveFFmpeg("ffmpeg", "whisper-cli")
	if status.Available {
		t.Fatal("expected ffmpeg resolution to fail")
	}
	if status.Detail == "" {
		t.Fatal("expected detail message when ffmpeg is unavailable")
	}
}

func TestCheckModel(t *testing.T) {
	tmp := t.TempDir()
	model := filepath.Join(tmp, "ggml-base.en.bin")
	if status := CheckModel(model); status.Available {
		t.Fatal("expected missing model to be unavailable")
	}
	if err := os.WriteFile(model, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if status := CheckModel(model); status.Available || status.Detail == "" {
		t.Fatalf("expected empty model to be rejected, got %#v", status)
	}
	if err := os.WriteFile(model, []byte("ggml"), 0o644); err != nil {
		t.Fatal(err)
	}
	if status := CheckModel(model); !status.Available {
		t.Fatalf("expected model to be available, got %q", status.Detail)
	}
	if status := CheckModel(""); status.Available {
		t.Fatal("expected unconfigured model to be unavailable")
	}
}

func executableName(base string) string {
	if runtime.GOOS == "windows" {
		return base + ".exe"
	}
	return base
}
