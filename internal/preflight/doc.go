// Package preflight provides readiness checks for the directories, binaries,
// and services the daemon depends on.
//
// The workflow manager runs RunAll once at startup and logs each result; a
// failing check does not stop the daemon because transcription failures are
// already retried per task. The CLI status command reuses the individual
// checks to render health tables.
package preflight
