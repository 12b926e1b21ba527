package workflow

import (
	"context"

	"voicenotes/internal/queue"
)

// QueueStatus is the snapshot served to the CLI and GUI.
type QueueStatus struct {
	Running      bool        `json:"running"`
	IsPaused     bool        `json:"is_paused"`
	IsProcessing bool        `json:"is_processing"`
	IsRecording  bool        `json:"is_recording"`
	ActiveTask   *queue.Task `json:"active_task,omitempty"`
	Pending      int         `json:"pending"`
	Processing   int         `json:"processing"`
	Completed    int         `json:"completed"`
	Failed       int         `json:"failed"`
	Total        int         `json:"total"`
	LastError    string      `json:"last_error,omitempty"`
}

// Pause halts claiming. In-flight tasks still complete.
func (m *Manager) Pause() {
	if !m.paused.Swap(true) {
		m.logger.Info("queue paused")
	}
}

// Resume re-enables claiming.
func (m *Manager) Resume() {
	if m.paused.Swap(false) {
		m.logger.Info("queue resumed")
	}
}

// IsPaused reports the paused flag.
func (m *Manager) IsPaused() bool {
	return m.paused.Load()
}

// SetRecording marks whether a live recording is active. While set, workers
// defer claiming new work.
func (m *Manager) SetRecording(active bool) {
	if m.recording.Swap(active) != active {
		m.logger.Info("recording state changed", "recording", active)
	}
}

// IsRecording reports the recording flag.
func (m *Manager) IsRecording() bool {
	return m.recording.Load()
}

// Status returns the latest queue information.
func (m *Manager) Status(ctx context.Context) (QueueStatus, error) {
	m.mu.RLock()
	status := QueueStatus{Running: m.running}
	if m.lastErr != nil {
		status.LastError = m.lastErr.Error()
	}
	m.mu.RUnlock()

	status.IsPaused = m.paused.Load()
	status.IsRecording = m.recording.Load()
	status.IsProcessing = m.inFlight.Load() > 0

	counts, err := m.store.Counts(ctx)
	if err != nil {
		return status, err
	}
	status.Pending = counts.Pending
	status.Processing = counts.Processing
	status.Completed = counts.Completed
	status.Failed = counts.Failed
	status.Total = counts.Total

	active, err := m.store.ActiveTask(ctx)
	if err != nil {
		return status, err
	}
	status.ActiveTask = active
	if active != nil {
		status.IsProcessing = true
	}
	return status, nil
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastTask(task *queue.Task) {
	m.mu.Lock()
	if task != nil {
		copied := *task
		m.lastTask = &copied
	} else {
		m.lastTask = nil
	}
	m.mu.Unlock()
}

// LastTask returns a copy of the most recently claimed task.
func (m *Manager) LastTask() *queue.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastTask == nil {
		return nil
	}
	copied := *m.lastTask
	return &copied
}
