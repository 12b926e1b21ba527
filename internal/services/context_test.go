package services_test

import (
	"context"
	"testing"

	"voicenotes/internal/services"
)

func TestContextRoundTrip(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithTaskID(ctx, "task-1")
	ctx = services.WithTranscriptionID(ctx, "20250810160626")
	ctx = services.WithTaskType(ctx, "transcribe_orphan")
	ctx = services.WithRequestID(ctx, "req-9")

	if v, ok := services.TaskIDFromContext(ctx); !ok || v != "task-1" {
		t.Fatalf("task id = %q, %v", v, ok)
	}
	if v, ok := services.TranscriptionIDFromContext(ctx); !ok || v != "20250810160626" {
		t.Fatalf("transcription id = %q, %v", v, ok)
	}
	if v, ok := services.TaskTypeFromContext(ctx); !ok || v != "transcribe_orphan" {
		t.Fatalf("task type = %q, %v", v, ok)
	}
	if v, ok := services.RequestIDFromContext(ctx); !ok || v != "req-9" {
		t.Fatalf("request id = %q, %v", v, ok)
	}
}

func TestEmptyValuesAreIgnored(t *testing.T) {
	ctx := services.WithTaskID(context.Background(), "")
	if _, ok := services.TaskIDFromContext(ctx); ok {
		t.Fatal("expected empty task id to be ignored")
	}
}
