// Package logs provides file tailing for the daemon log and a small HTTP
// client for the daemon's event history.
//
// Tail streams log files with bounded memory usage, supports negative offsets
// for "last N lines" reads, and powers `voicenotes logs --follow`. Callers
// supply context deadlines so background polling shuts down cleanly when the
// CLI exits.
package logs
