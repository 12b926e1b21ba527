// Package watcher reacts to filesystem changes in the notes tree and the
// pending imports folder between scheduled reconciliation passes.
//
// New audio is queued for transcription once writes settle, edited transcripts
// refresh their record, deleted audio soft-deletes its record, and files
// dropped into the imports folder are queued for processing. The watcher is
// an accelerator only: when it cannot start, periodic sync still converges.
package watcher
