// Package logging assembles structured slog loggers and formatting helpers used
// across voicenotes components.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so worker code can tag log lines
// with task identifiers, transcription ids, and correlation ids. A no-op
// logger is provided for tests and wiring code that cannot fail.
package logging
