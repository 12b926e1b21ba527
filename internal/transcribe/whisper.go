package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"voicenotes/internal/audioinfo"
	"voicenotes/internal/config"
	"voicenotes/internal/logging"
	"voicenotes/internal/services"
)

const (
	stagePreprocess = "preprocessing"
	stageTranscribe = "transcribing"
	stageExport     = "exporting"
)

var detectedLanguage = regexp.MustCompile(`auto-detected language:\s*([a-z]{2,3})`)

// Whisper runs ffmpeg followed by a whisper.cpp compatible binary.
type Whisper struct {
	ffmpegPath  string
	whisperPath string
	modelPath   string
	modelName   string
	language    string
	threads     int
	timeout     time.Duration
	logger      *slog.Logger

	runner    commandRunner
	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	stat      func(name string) (os.FileInfo, error)
	readDir   func(name string) ([]os.DirEntry, error)
	readFile  func(name string) ([]byte, error)
}

// NewWhisper builds the production transcriber from configuration.
func NewWhisper(cfg config.Transcription, logger *slog.Logger) *Whisper {
	return &Whisper{
		ffmpegPath:  cfg.FFmpegBinary,
		whisperPath: cfg.WhisperBinary,
		modelPath:   cfg.ModelPath,
		modelName:   cfg.ModelName,
		language:    cfg.Language,
		threads:     cfg.Threads,
		timeout:     cfg.Timeout(),
		logger:      logging.NewComponentLogger(logger, "transcriber"),
		runner:      execRunner{},
		mkdirTemp:   os.MkdirTemp,
		removeAll:   os.RemoveAll,
		stat:        os.Stat,
		readDir:     os.ReadDir,
		readFile:    os.ReadFile,
	}
}

// Transcribe implements Transcriber.
func (w *Whisper) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	if strings.TrimSpace(audioPath) == "" {
		return Result{}, services.Wrap(services.ErrValidation, "transcriber", "input", "audio path is required", nil)
	}
	if _, err := w.stat(audioPath); err != nil {
		marker := services.ErrTransient
		if errors.Is(err, os.ErrNotExist) {
			marker = services.ErrNotFound
		}
		return Result{}, services.Wrap(marker, "transcriber", "input", "cannot access "+audioPath, err)
	}
	modelPath, err := w.resolveModelPath()
	if err != nil {
		return Result{}, services.Wrap(services.ErrConfiguration, "transcriber", "model", err.Error(), nil)
	}

	if w.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.timeout)
		defer cancel()
	}

	tempDir, err := w.mkdirTemp("", "voicenotes-transcribe-*")
	if err != nil {
		return Result{}, &PipelineError{Stage: stagePreprocess, Message: "failed to create temporary workspace", Err: err}
	}
	defer func() {
		if err := w.removeAll(tempDir); err != nil {
			w.logger.Debug("temp cleanup failed", logging.Error(err))
		}
	}()

	wavPath := filepath.Join(tempDir, "input-16k-mono.wav")
	ffmpegArgs := buildFFmpegArgs(audioPath, wavPath)
	ffmpegLog, err := w.run(ctx, w.ffmpegPath, ffmpegArgs)
	if err != nil {
		return Result{}, w.stageError(ctx, stagePreprocess, "ffmpeg audio conversion failed", ffmpegLog, err)
	}
	if _, err := w.stat(wavPath); err != nil {
		return Result{}, &PipelineError{Stage: stagePreprocess, Message: "ffmpeg completed but output file is missing", CommandLog: ffmpegLog, Err: err}
	}

	textBase := filepath.Join(tempDir, "transcript")
	whisperArgs := buildWhisperArgs(modelPath, wavPath, textBase, w.language, w.threads)
	whisperLog, err := w.run(ctx, w.whisperPath, whisperArgs)
	if err != nil {
		return Result{}, w.stageError(ctx, stageTranscribe, "whisper transcription failed", whisperLog, err)
	}

	content, err := w.readFile(textBase + ".txt")
	if err != nil {
		return Result{}, &PipelineError{Stage: stageExport, Message: "whisper completed but transcript file is missing", CommandLog: whisperLog, Err: err}
	}

	result := Result{
		Text:     cleanTranscript(string(content)),
		Language: w.resultLanguage(whisperLog),
		Model:    w.modelLabel(modelPath),
	}
	if info, err := audioinfo.Probe(wavPath); err == nil {
		result.DurationSeconds = info.DurationSeconds
	} else {
		result.DurationSeconds = audioinfo.Duration(audioPath)
	}
	w.logger.Debug("transcription finished",
		logging.String("audio_path", audioPath),
		logging.Int("chars", len(result.Text)),
		logging.Float64("duration_seconds", result.DurationSeconds),
	)
	return result, nil
}

func (w *Whisper) run(ctx context.Context, name string, args []string) (CommandLog, error) {
	res, err := w.runner.Run(ctx, name, args...)
	log := CommandLog{
		Command:  name,
		Args:     args,
		ExitCode: res.ExitCode,
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
	}
	return log, err
}

func (w *Whisper) stageError(ctx context.Context, stage, message string, log CommandLog, err error) error {
	perr := &PipelineError{Stage: stage, Message: message, CommandLog: log, Err: err}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, "transcriber", stage, "timed out after "+w.timeout.String(), perr)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return services.Wrap(services.ErrConfiguration, "transcriber", stage, log.Command+" not found", perr)
	}
	return services.Wrap(services.ErrExternalTool, "transcriber", stage, "", perr)
}

// resolveModelPath accepts a model file or a directory containing one.
func (w *Whisper) resolveModelPath() (string, error) {
	modelPath := strings.TrimSpace(w.modelPath)
	if modelPath == "" {
		return "", fmt.Errorf("transcription.model_path is required")
	}
	info, err := w.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := w.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory %s", modelPath)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".bin" && ext != ".gguf" {
			continue
		}
		if w.modelName != "" && strings.Contains(entry.Name(), w.modelName) {
			return filepath.Join(modelPath, entry.Name()), nil
		}
		names = append(names, entry.Name())
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in %s", modelPath)
	}
	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

func (w *Whisper) resultLanguage(log CommandLog) string {
	if m := detectedLanguage.FindStringSubmatch(log.Stderr + "\n" + log.Stdout); len(m) == 2 {
		return m[1]
	}
	if lang := normalizeLanguage(w.language); lang != "" {
		return lang
	}
	return ""
}

func (w *Whisper) modelLabel(modelPath string) string {
	if w.modelName != "" {
		return w.modelName
	}
	base := strings.TrimSuffix(filepath.Base(modelPath), filepath.Ext(modelPath))
	return strings.TrimPrefix(base, "ggml-")
}

// normalizeLanguage maps "auto" and empty to no CLI override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func buildFFmpegArgs(inputPath, outPath string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", inputPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	}
}

func buildWhisperArgs(modelPath, audioPath, textBase, language string, threads int) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	} else {
		args = append(args, "-l", "auto")
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}

// cleanTranscript collapses whisper's per-segment lines into paragraphs.
func cleanTranscript(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || line == "[BLANK_AUDIO]" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, " ")
}
