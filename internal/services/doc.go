// Package services holds the cross-cutting error taxonomy and context
// annotations shared by the queue worker, reconciler, and importers.
//
// Errors are tagged with one of the exported sentinel markers via Wrap so the
// worker can decide whether a failed attempt is worth retrying. Context
// helpers carry task and transcription identifiers into log lines.
package services
