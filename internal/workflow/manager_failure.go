package workflow

import (
	"context"
	"log/slog"
	"strings"

	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/services"
)

func (m *Manager) handleTaskFailure(ctx context.Context, logger *slog.Logger, task *queue.Task, taskErr error) {
	m.setLastError(taskErr)
	message := classifyFailure(task, taskErr)
	retryable := services.Retryable(taskErr)

	status, err := m.store.FailAttempt(ctx, task.ID, message, retryable)
	if err != nil {
		logging.ErrorWithContext(logger, "failed to persist task failure", "task_failure_persist_failed",
			logging.Error(err),
			logging.String("task_error", message),
			logging.String(logging.FieldErrorHint, "check queue database access"),
		)
		return
	}

	if status == queue.TaskPending {
		logging.WarnWithContext(logger, "task attempt failed; will retry", "task_retry",
			logging.Error(taskErr),
			logging.Int("attempt", task.RetryCount+1),
			logging.Int("max_retries", task.MaxRetries),
			logging.String(logging.FieldErrorHint, services.Hint(taskErr)),
			logging.String(logging.FieldImpact, "task returns to the queue"),
		)
		m.publish(ctx, logger, eventRetrying(task, message))
		return
	}

	logging.ErrorWithContext(logger, "task failed", "task_failed",
		logging.Error(taskErr),
		logging.Bool("retryable", retryable),
		logging.Int("retry_count", task.RetryCount),
		logging.String(logging.FieldErrorHint, services.Hint(taskErr)),
		logging.Alert("task_failure"),
	)
	m.publish(ctx, logger, eventFailed(task, message))
}

func classifyFailure(task *queue.Task, err error) string {
	if err == nil {
		return string(task.Type) + " failed without error detail"
	}
	message := strings.TrimSpace(err.Error())
	if message == "" {
		message = string(task.Type) + " failed"
	}
	return message
}
