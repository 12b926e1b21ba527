package transcribe

import "context"

// Result is the outcome of a transcription run.
type Result struct {
	Text            string
	Language        string
	DurationSeconds float64
	Model           string
}

// Transcriber converts an audio file to text. Implementations may block for
// a long time and should honour ctx cancellation.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}

// Func adapts a plain function to the Transcriber interface.
type Func func(ctx context.Context, audioPath string) (Result, error)

// Transcribe calls f.
func (f Func) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	return f(ctx, audioPath)
}
