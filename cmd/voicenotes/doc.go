// Command voicenotes runs the transcription daemon and offers a CLI over it.
//
// Daemon control (start, stop, status, pause, recording) talks to the running
// daemon over its Unix socket. Queue and notes reads fall back to opening the
// SQLite store directly when the daemon is not running, so `voicenotes notes
// search` works offline.
package main
