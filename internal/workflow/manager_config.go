package workflow

import (
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/transcribe"
)

// HandlerSet bundles the collaborators the manager dispatches to. Nil fields
// leave the matching task types unhandled; such tasks fail permanently.
type HandlerSet struct {
	Transcriber transcribe.Transcriber
	Syncer      Syncer
	Importer    Importer
}

// ConfigureHandlers registers handlers for every task type the set covers.
func (m *Manager) ConfigureHandlers(set HandlerSet) {
	if set.Transcriber != nil {
		h := &transcribeHandler{
			cfg:         m.cfg,
			transcriber: set.Transcriber,
			logger:      logging.NewComponentLogger(m.logger, "transcribe-handler"),
		}
		m.Register(queue.TaskTranscribeOrphan, h)
		m.Register(queue.TaskTranscribeImported, h)
	}
	if set.Syncer != nil {
		m.Register(queue.TaskFileSystemSync, &syncHandler{
			syncer: set.Syncer,
			logger: logging.NewComponentLogger(m.logger, "sync-handler"),
		})
	}
	if set.Importer != nil {
		m.Register(queue.TaskProcessImport, &importHandler{importer: set.Importer})
	}
}

// Register installs a handler for one task type, replacing any previous one.
func (m *Manager) Register(taskType queue.TaskType, handler Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if handler == nil {
		delete(m.handlers, taskType)
		return
	}
	m.handlers[taskType] = handler
}

func (m *Manager) handlerFor(taskType queue.TaskType) (Handler, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.handlers[taskType]
	return h, ok
}
