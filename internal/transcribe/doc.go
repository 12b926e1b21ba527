// Package transcribe drives the external speech-to-text tools.
//
// The Transcriber interface is the narrow seam the worker depends on. Whisper
// is the production implementation: it converts the input to 16 kHz mono PCM
// with ffmpeg, runs the whisper binary with text output, and reads the
// transcript back. Every external invocation is captured as a CommandLog so a
// failure can be diagnosed from the task's error message alone.
//
// WriteOutputs persists a finished transcript next to its audio file along
// with the JSON sidecar that the reconciler later reads.
package transcribe
