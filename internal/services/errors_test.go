package services_test

import (
	"errors"
	"strings"
	"testing"

	"voicenotes/internal/services"
)

func TestWrapKeepsMarkerAndCause(t *testing.T) {
	cause := errors.New("exit status 1")
	err := services.Wrap(services.ErrExternalTool, "transcribe", "whisper", "model crashed", cause)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be preserved: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be preserved: %v", err)
	}
	if !strings.Contains(err.Error(), "transcribe: whisper: model crashed") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestWrapDefaultsToTransient(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker: %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"transient", services.Wrap(services.ErrTransient, "x", "y", "z", nil), true},
		{"external", services.Wrap(services.ErrExternalTool, "x", "y", "z", nil), true},
		{"plain", errors.New("boom"), true},
		{"validation", services.Wrap(services.ErrValidation, "x", "y", "z", nil), false},
		{"configuration", services.Wrap(services.ErrConfiguration, "x", "y", "z", nil), false},
	}
	for _, tt := range tests {
		if got := services.Retryable(tt.err); got != tt.want {
			t.Errorf("%s: Retryable=%v want %v", tt.name, got, tt.want)
		}
	}
}
