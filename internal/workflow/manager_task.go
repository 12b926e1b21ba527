package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/services"
)

// processTask executes a claimed task to a terminal transition. It never
// returns an error; every outcome is recorded in the store and the log.
func (m *Manager) processTask(ctx context.Context, workerLogger *slog.Logger, task *queue.Task) {
	m.inFlight.Add(1)
	defer m.inFlight.Add(-1)

	// Shutdown stops new claims only; the claimed task runs to completion.
	execCtx := withTaskContext(context.WithoutCancel(ctx), task, uuid.NewString())
	logger := logging.WithContext(execCtx, workerLogger)
	m.setLastTask(task)

	if task.Type.IsTranscription() {
		m.markRecordProcessing(execCtx, logger, task)
	}
	m.publish(execCtx, logger, eventClaimed(task))

	logger.Info("task started",
		logging.String(logging.FieldEventType, "task_start"),
		logging.String("priority", task.Priority.String()),
		logging.Int("attempt", task.RetryCount+1),
		logging.Int("max_attempts", task.MaxRetries+1),
	)
	start := time.Now()

	handler, ok := m.handlerFor(task.Type)
	if !ok {
		err := services.Wrap(services.ErrConfiguration, "workflow", "dispatch", fmt.Sprintf("no handler for task type %q", task.Type), nil)
		m.handleTaskFailure(execCtx, logger, task, err)
		return
	}

	result, err := m.executeWithHeartbeat(execCtx, handler, task)
	if err != nil {
		m.handleTaskFailure(execCtx, logger, task, err)
		return
	}

	if err := m.completeTask(execCtx, task, result); err != nil {
		if errors.Is(err, queue.ErrRecordNotFound) {
			err = services.Wrap(services.ErrValidation, "workflow", "complete", "record "+task.TranscriptionID+" no longer exists", err)
		}
		m.handleTaskFailure(execCtx, logger, task, err)
		return
	}

	logger.Info("task completed",
		logging.String(logging.FieldEventType, "task_complete"),
		logging.Duration("task_duration", time.Since(start)),
	)
	m.publish(execCtx, logger, eventCompleted(task, result))
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler Handler, task *queue.Task) (*queue.TranscriptionResult, error) {
	stop := m.heartbeat.beat(ctx, task.ID)
	defer stop()
	return safeExecute(ctx, handler, task)
}

// safeExecute turns a handler panic into a task failure.
func safeExecute(ctx context.Context, handler Handler, task *queue.Task) (result *queue.TranscriptionResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrTransient, "workflow", "execute", fmt.Sprintf("handler panic: %v", r), nil)
		}
	}()
	return handler.Execute(ctx, task)
}

func (m *Manager) completeTask(ctx context.Context, task *queue.Task, result *queue.TranscriptionResult) error {
	if !task.Type.IsTranscription() {
		return m.store.CompleteTask(ctx, task.ID)
	}
	if result == nil {
		return services.Wrap(services.ErrValidation, "workflow", "complete", "transcription handler returned no result", nil)
	}
	return m.store.CompleteTranscription(ctx, task.ID, task.TranscriptionID, *result)
}

func (m *Manager) markRecordProcessing(ctx context.Context, logger *slog.Logger, task *queue.Task) {
	rec, err := m.store.GetRecord(ctx, task.TranscriptionID)
	if err != nil {
		logger.Warn("record lookup failed", logging.Error(err))
		return
	}
	if rec == nil || rec.Status == queue.RecordComplete {
		return
	}
	if err := m.store.UpdateRecordStatus(ctx, rec.ID, queue.RecordProcessing, ""); err != nil {
		logger.Warn("record status update failed", logging.Error(err))
	}
}
