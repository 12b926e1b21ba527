// Package api defines wire-format types and converters shared by the IPC
// server, the CLI, and GUI clients. It translates internal queue, record, and
// workflow models into transport-friendly DTOs so consumers never couple to
// storage types.
//
// # Key Types
//
// Task: transport representation of a background task.
//
// Record: one transcription record with its transcript text and paths.
//
// QueueStatus / DaemonStatus: worker flags, queue counts, active task, and
// daemon runtime details.
//
// # Services
//
// QueueService and RecordService wrap a store for read paths that work both
// inside the daemon and when the CLI opens the database directly.
// RecordService.Search ranks substring matches by TF-IDF cosine similarity.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers. Internal
// enums are exposed as lowercase strings. Timestamps use RFC3339 with
// milliseconds.
package api
