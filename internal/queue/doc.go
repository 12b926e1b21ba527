// Package queue persists transcription records and background tasks in
// SQLite and exposes helpers for driving their lifecycle.
//
// The Store manages database connections, schema initialization, the atomic
// claim of the next eligible task, retry bookkeeping, heartbeat tracking, and
// stale-task recovery. Transcription records mirror the audio tree on disk;
// background tasks describe the work still needed to resolve them.
//
// Schema changes bump the version in schema.go; users clear the database to
// adopt the new schema. Records can always be rebuilt by a full sync.
package queue
