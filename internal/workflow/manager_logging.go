package workflow

import (
	"context"

	"voicenotes/internal/queue"
	"voicenotes/internal/services"
)

func withTaskContext(ctx context.Context, task *queue.Task, requestID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if task != nil {
		ctx = services.WithTaskID(ctx, task.ID)
		ctx = services.WithTaskType(ctx, string(task.Type))
		if task.Type.IsTranscription() {
			ctx = services.WithTranscriptionID(ctx, task.TranscriptionID)
		}
	}
	if requestID != "" {
		ctx = services.WithRequestID(ctx, requestID)
	}
	return ctx
}
