package services

import "context"

type contextKey string

const (
	taskIDKey          contextKey = "task_id"
	transcriptionIDKey contextKey = "transcription_id"
	taskTypeKey        contextKey = "task_type"
	requestIDKey       contextKey = "request_id"
)

// WithTaskID annotates context with the background task identifier.
func WithTaskID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, taskIDKey, id)
}

// TaskIDFromContext extracts the background task identifier if present.
func TaskIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTranscriptionID annotates context with the record a task resolves.
func WithTranscriptionID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, transcriptionIDKey, id)
}

// TranscriptionIDFromContext returns the transcription identifier if present.
func TranscriptionIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(transcriptionIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithTaskType annotates context with the task kind being executed.
func WithTaskType(ctx context.Context, taskType string) context.Context {
	if taskType == "" {
		return ctx
	}
	return context.WithValue(ctx, taskTypeKey, taskType)
}

// TaskTypeFromContext returns the task kind if present.
func TaskTypeFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(taskTypeKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
