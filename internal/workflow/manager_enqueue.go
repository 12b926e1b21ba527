package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voicenotes/internal/identity"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/services"
)

// EnqueueTranscription registers audioPath as a record when needed and makes
// sure a transcription task is queued for it. A failed task is retried and a
// pending one is raised to priority; an in-progress task is returned as is.
func (m *Manager) EnqueueTranscription(ctx context.Context, audioPath string, priority queue.Priority) (*queue.Task, error) {
	audioPath = strings.TrimSpace(audioPath)
	if audioPath == "" {
		return nil, services.Wrap(services.ErrValidation, "workflow", "enqueue transcription", "audio path is required", nil)
	}
	if !filepath.IsAbs(audioPath) {
		audioPath = identity.AbsPath(m.cfg.Paths.NotesDir, audioPath)
	}
	info, err := os.Stat(audioPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, services.Wrap(services.ErrNotFound, "workflow", "enqueue transcription", audioPath, err)
		}
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if info.IsDir() {
		return nil, services.Wrap(services.ErrValidation, "workflow", "enqueue transcription", audioPath+" is a directory", nil)
	}

	if within, err := filepath.Rel(m.cfg.Paths.NotesDir, audioPath); err != nil || within == ".." || strings.HasPrefix(within, ".."+string(filepath.Separator)) {
		return nil, services.Wrap(services.ErrValidation, "workflow", "enqueue transcription", audioPath+" is outside the notes directory", nil)
	}
	rel := identity.StorePath(m.cfg.Paths.NotesDir, audioPath, m.cfg.Paths.RootMarker)
	id, err := identity.DeriveIDWithFallback(filepath.Base(rel), filepath.Dir(rel), info.ModTime())
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "enqueue transcription", rel, err)
	}
	if !identity.IsCanonical(id) {
		logging.WarnWithContext(m.logger, "audio file name does not follow the HHMMSS convention", "non_canonical_id",
			logging.String(logging.FieldTranscriptionID, id),
			logging.String("audio_path", rel),
			logging.String(logging.FieldImpact, "record is keyed by its file stem"),
		)
	}

	createdAt := info.ModTime().UTC()
	if parsed, ok := identity.ParseID(id); ok {
		createdAt = parsed
	}
	if _, err := m.store.InsertRecord(ctx, &queue.Record{
		ID:            id,
		AudioPath:     rel,
		Status:        queue.RecordPending,
		Source:        queue.SourceRecording,
		FileSizeBytes: info.Size(),
		CreatedAt:     createdAt,
	}); err != nil {
		return nil, err
	}

	task := queue.NewTask(id, queue.TranscribeOrphan{
		AudioPath:  rel,
		OutputPath: identity.TextPath(rel),
	}, priority, m.cfg.Workflow.DefaultMaxRetries)
	created, err := m.store.EnqueueUnique(ctx, task)
	if err != nil {
		return nil, err
	}
	if created {
		m.logger.Info("transcription queued",
			logging.String(logging.FieldTranscriptionID, id),
			logging.String(logging.FieldTaskID, task.ID),
			logging.String("priority", priority.String()),
			logging.String(logging.FieldEventType, "transcription_queued"),
		)
		return task, nil
	}

	existing, err := m.store.UnresolvedTaskFor(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		// Resolved between the insert attempt and the lookup.
		return nil, nil
	}
	switch existing.Status {
	case queue.TaskFailed:
		if err := m.store.RetryTask(ctx, existing.ID); err != nil {
			return nil, err
		}
		if err := m.store.RaisePriority(ctx, existing.ID, priority); err != nil {
			return nil, err
		}
	case queue.TaskPending:
		if err := m.store.RaisePriority(ctx, existing.ID, priority); err != nil {
			return nil, err
		}
	}
	return m.store.GetTask(ctx, existing.ID)
}

// EnqueueSync queues a filesystem sync unless one is already pending or
// processing. It reports whether a task was created. A failed sync does
// not block new ones.
func (m *Manager) EnqueueSync(ctx context.Context, fullScan bool) (bool, error) {
	open, err := m.store.HasOpenTask(ctx, queue.SyncTaskKey)
	if err != nil {
		return false, err
	}
	if open {
		m.logger.Debug("sync already queued", logging.String(logging.FieldEventType, "sync_skipped"))
		return false, nil
	}
	task := queue.NewTask(queue.SyncTaskKey, queue.FileSystemSync{FullScan: fullScan}, queue.PriorityLow, 1)
	if err := m.store.Enqueue(ctx, task); err != nil {
		return false, err
	}
	m.logger.Debug("sync queued",
		logging.String(logging.FieldTaskID, task.ID),
		logging.Bool("full_scan", fullScan),
	)
	return true, nil
}
