// Package reconcile brings the transcription record table in line with the
// notes tree on disk.
//
// A pass walks the notes root, derives each audio file's id, and inserts
// records for files the store has never seen. Records whose files carry a
// transcript are promoted to complete; unresolved ones get a low-priority
// transcription task when none is outstanding. Records whose audio
// disappeared are soft-deleted by setting the missing flag.
//
// Passes are serialized by a mutex so the scheduler, the file watcher, and
// IPC requests can all trigger one safely. Re-running on an unchanged tree
// reports no new, updated, or missing records.
package reconcile
