package transcribe

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/services"
	"voicenotes/internal/testsupport"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (commandResult, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	if f.run == nil {
		return commandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func newTestWhisper(t *testing.T, runner commandRunner) (*Whisper, string) {
	t.Helper()
	root := t.TempDir()
	modelPath := filepath.Join(root, "ggml-base.en.bin")
	testsupport.WriteText(t, modelPath, "model")
	audioPath := filepath.Join(root, "notes", "2025", "2025-08-10", "160626-voice-note.m4a")
	testsupport.WriteFile(t, audioPath, 512)

	w := NewWhisper(config.Transcription{
		WhisperBinary:  "whisper-test",
		FFmpegBinary:   "ffmpeg-test",
		ModelPath:      modelPath,
		Language:       "auto",
		Threads:        4,
		TimeoutSeconds: 30,
	}, nil)
	w.runner = runner
	return w, audioPath
}

func argValue(args []string, flag string) string {
	idx := slices.Index(args, flag)
	if idx < 0 || idx+1 >= len(args) {
		return ""
	}
	return args[idx+1]
}

func TestWhisperTranscribeSuccess(t *testing.T) {
	var calls []string
	var whisperArgs []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		calls = append(calls, name)
		switch name {
		case "ffmpeg-test":
			testsupport.WriteWAV(t, args[len(args)-1], 16000, 1.5)
			return commandResult{}, nil
		case "whisper-test":
			whisperArgs = append([]string{}, args...)
			testsupport.WriteText(t, argValue(args, "-of")+".txt", " hello there\n[BLANK_AUDIO]\n general kenobi \n")
			return commandResult{Stderr: "whisper_full_with_state: auto-detected language: de (p = 0.91)\n"}, nil
		}
		t.Fatalf("unexpected command %q", name)
		return commandResult{}, nil
	}}
	w, audioPath := newTestWhisper(t, runner)

	result, err := w.Transcribe(context.Background(), audioPath)
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if !slices.Equal(calls, []string{"ffmpeg-test", "whisper-test"}) {
		t.Fatalf("calls = %v", calls)
	}
	if result.Text != "hello there general kenobi" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.Language != "de" {
		t.Fatalf("language = %q", result.Language)
	}
	if result.Model != "base.en" {
		t.Fatalf("model = %q", result.Model)
	}
	if result.DurationSeconds < 1.49 || result.DurationSeconds > 1.51 {
		t.Fatalf("duration = %v", result.DurationSeconds)
	}
	if argValue(whisperArgs, "-l") != "auto" || argValue(whisperArgs, "-t") != "4" {
		t.Fatalf("whisper args = %v", whisperArgs)
	}
	if _, err := os.Stat(filepath.Dir(argValue(whisperArgs, "-f"))); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp dir cleanup, stat err = %v", err)
	}
}

func TestWhisperFFmpegFailure(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{Stderr: "Invalid data found when processing input\n", ExitCode: 1}, errors.New("exit status 1")
	}}
	w, audioPath := newTestWhisper(t, runner)

	_, err := w.Transcribe(context.Background(), audioPath)
	var perr *PipelineError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PipelineError, got %v", err)
	}
	if perr.Stage != stagePreprocess || perr.CommandLog.ExitCode != 1 {
		t.Fatalf("unexpected pipeline error: %+v", perr)
	}
	if !errors.Is(err, services.ErrExternalTool) || !services.Retryable(err) {
		t.Fatalf("expected retryable external tool error, got %v", err)
	}
}

func TestWhisperMissingBinaryIsConfigurationError(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		return commandResult{ExitCode: -1}, &exec.Error{Name: name, Err: exec.ErrNotFound}
	}}
	w, audioPath := newTestWhisper(t, runner)

	_, err := w.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if services.Retryable(err) {
		t.Fatal("missing binary should not be retried")
	}
}

func TestWhisperMissingInput(t *testing.T) {
	w, audioPath := newTestWhisper(t, &fakeRunner{})
	if err := os.Remove(audioPath); err != nil {
		t.Fatal(err)
	}
	_, err := w.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestWhisperTimeout(t *testing.T) {
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (commandResult, error) {
		<-ctx.Done()
		return commandResult{ExitCode: -1}, ctx.Err()
	}}
	w, audioPath := newTestWhisper(t, runner)
	w.timeout = 20 * time.Millisecond

	_, err := w.Transcribe(context.Background(), audioPath)
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}

func TestResolveModelFromDirectory(t *testing.T) {
	dir := t.TempDir()
	testsupport.WriteText(t, filepath.Join(dir, "ggml-small.bin"), "x")
	testsupport.WriteText(t, filepath.Join(dir, "ggml-base.en.bin"), "x")
	testsupport.WriteText(t, filepath.Join(dir, "README.md"), "x")

	w := NewWhisper(config.Transcription{ModelPath: dir, ModelName: "base.en"}, nil)
	got, err := w.resolveModelPath()
	if err != nil {
		t.Fatalf("resolveModelPath: %v", err)
	}
	if filepath.Base(got) != "ggml-base.en.bin" {
		t.Fatalf("got %q", got)
	}

	w.modelName = ""
	got, err = w.resolveModelPath()
	if err != nil || filepath.Base(got) != "ggml-base.en.bin" {
		t.Fatalf("sorted fallback: got %q, %v", got, err)
	}
}
