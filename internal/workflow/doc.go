// Package workflow drains the background task queue.
//
// The Manager runs one worker loop per configured worker. Each iteration
// checks for shutdown, yields while the queue is paused or a live recording
// is active, then claims the next task through the store's atomic claim and
// hands it to the handler registered for its task type. Success resolves the
// task (and, for transcriptions, its record in the same transaction);
// failure goes through FailAttempt, which either returns the task to the
// pending pool or fails it permanently once the retry budget is spent.
//
// In-flight work runs on a context detached from shutdown so a stop request
// only prevents new claims. Heartbeats are refreshed while a handler runs and
// stale claims left behind by a crashed process are reclaimed.
//
// UI-facing helpers (EnqueueTranscription, EnqueueSync, Pause, Resume,
// SetRecording, Status) live here so the daemon and watcher share one
// implementation of the dedup rules.
package workflow
