package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/identity"
	"voicenotes/internal/imports"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/services"
	"voicenotes/internal/transcribe"
)

// Handler executes one claimed task. Transcription handlers return the result
// that resolves the task's record; other handlers return nil.
type Handler interface {
	Execute(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error)

// Execute calls f.
func (f HandlerFunc) Execute(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error) {
	return f(ctx, task)
}

// Syncer runs a reconciliation pass.
type Syncer interface {
	Reconcile(ctx context.Context) (reconcile.SyncReport, error)
}

// Importer files one pending import into the notes tree.
type Importer interface {
	Process(ctx context.Context, payload queue.ProcessImport) (imports.Result, error)
}

type transcribeHandler struct {
	cfg         *config.Config
	transcriber transcribe.Transcriber
	logger      *slog.Logger
}

func (h *transcribeHandler) Execute(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error) {
	var relAudio, relText string
	switch payload := task.Payload.(type) {
	case queue.TranscribeOrphan:
		relAudio, relText = payload.AudioPath, payload.OutputPath
	case queue.TranscribeImported:
		relAudio = payload.AudioPath
	default:
		return nil, services.Wrap(services.ErrValidation, "workflow", "transcribe", fmt.Sprintf("unexpected payload %T", task.Payload), nil)
	}
	if strings.TrimSpace(relAudio) == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "transcribe", "payload has no audio path", nil)
	}
	if relText == "" {
		relText = identity.TextPath(relAudio)
	}

	audioPath := identity.AbsPath(h.cfg.Paths.NotesDir, relAudio)
	if _, err := os.Stat(audioPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "workflow", "transcribe", "audio file missing: "+relAudio, err)
		}
		return nil, fmt.Errorf("stat audio: %w", err)
	}

	start := time.Now()
	result, err := h.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return nil, err
	}
	// Stored text must match what a sync pass reads back from the .txt file.
	result.Text = strings.TrimSpace(result.Text)
	if _, err := transcribe.WriteOutputs(audioPath, result, time.Now()); err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "write outputs", relAudio, err)
	}
	h.logger.Info("transcription written",
		logging.String(logging.FieldEventType, "transcription_written"),
		logging.String("audio_path", relAudio),
		logging.Int("chars", len(result.Text)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return &queue.TranscriptionResult{
		Text:            result.Text,
		TextPath:        relText,
		Language:        result.Language,
		Model:           result.Model,
		DurationSeconds: result.DurationSeconds,
	}, nil
}

type syncHandler struct {
	syncer Syncer
	logger *slog.Logger
}

func (h *syncHandler) Execute(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error) {
	if _, ok := task.Payload.(queue.FileSystemSync); !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "sync", fmt.Sprintf("unexpected payload %T", task.Payload), nil)
	}
	report, err := h.syncer.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	h.logger.Debug("sync task finished",
		logging.Int("scanned", report.Scanned),
		logging.Int("new", report.New),
		logging.Int("errors", len(report.Errors)),
	)
	return nil, nil
}

type importHandler struct {
	importer Importer
}

func (h *importHandler) Execute(ctx context.Context, task *queue.Task) (*queue.TranscriptionResult, error) {
	payload, ok := task.Payload.(queue.ProcessImport)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", "import", fmt.Sprintf("unexpected payload %T", task.Payload), nil)
	}
	_, err := h.importer.Process(ctx, payload)
	return nil, err
}
