// Package daemon coordinates the long-running voicenotes process.
//
// It wires the record store, the workflow manager, the cron scheduler, the
// filesystem watcher, and the optional HTTP status API into a single
// lifecycle guarded by a flock so only one instance runs per state
// directory. The control methods here back both the JSON-RPC socket and the
// HTTP routes.
//
// Keep orchestration logic here: transcription, reconciliation, and import
// handling live in their own packages.
package daemon
