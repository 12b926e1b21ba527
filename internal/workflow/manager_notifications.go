package workflow

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode/utf8"

	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
)

const previewRunes = 120

type taskEvent struct {
	event   notifications.Event
	payload notifications.Payload
}

func (m *Manager) publish(ctx context.Context, logger *slog.Logger, ev taskEvent) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Publish(ctx, ev.event, ev.payload); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("daemon shutting down, could not publish event", logging.String("event", string(ev.event)))
		} else {
			logger.Debug("event publish failed", logging.String("event", string(ev.event)), logging.Error(err))
		}
	}
}

func basePayload(task *queue.Task) notifications.Payload {
	return notifications.Payload{
		"task_id":          task.ID,
		"transcription_id": task.TranscriptionID,
		"task_type":        string(task.Type),
		"priority":         task.Priority.String(),
	}
}

func eventClaimed(task *queue.Task) taskEvent {
	return taskEvent{event: notifications.EventTaskClaimed, payload: basePayload(task)}
}

func eventCompleted(task *queue.Task, result *queue.TranscriptionResult) taskEvent {
	payload := basePayload(task)
	if result != nil {
		payload["preview"] = preview(result.Text)
		payload["language"] = result.Language
		payload["duration_seconds"] = result.DurationSeconds
	}
	return taskEvent{event: notifications.EventTaskCompleted, payload: payload}
}

func eventRetrying(task *queue.Task, message string) taskEvent {
	payload := basePayload(task)
	payload["attempt"] = task.RetryCount + 1
	payload["max_retries"] = task.MaxRetries
	payload["error"] = message
	return taskEvent{event: notifications.EventTaskRetrying, payload: payload}
}

func eventFailed(task *queue.Task, message string) taskEvent {
	payload := basePayload(task)
	payload["error"] = message
	return taskEvent{event: notifications.EventTaskFailed, payload: payload}
}

func preview(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "…"
}
