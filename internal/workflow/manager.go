package workflow

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
)

// Manager coordinates queue processing using registered task handlers.
type Manager struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service

	heartbeat *heartbeats

	pollInterval       time.Duration
	pausedInterval     time.Duration
	busyInterval       time.Duration
	errorRetryInterval time.Duration
	workers            int

	handlers map[queue.TaskType]Handler

	paused    atomic.Bool
	recording atomic.Bool
	inFlight  atomic.Int32

	mu       sync.RWMutex
	running  bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	lastErr  error
	lastTask *queue.Task
}

// NewManager constructs a workflow manager. A nil notifier disables events.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	logger = logging.NewComponentLogger(logger, "workflow")
	workers := cfg.Workflow.Workers
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		cfg:                cfg,
		store:              store,
		logger:             logger,
		notifier:           notifier,
		pollInterval:       cfg.Workflow.PollInterval(),
		pausedInterval:     cfg.Workflow.PausedInterval(),
		busyInterval:       cfg.Workflow.BusyInterval(),
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		workers:            workers,
		heartbeat: newHeartbeats(
			store,
			logger,
			time.Duration(cfg.Workflow.HeartbeatInterval)*time.Second,
			time.Duration(cfg.Workflow.HeartbeatTimeout)*time.Second,
		),
		handlers: make(map[queue.TaskType]Handler),
	}
}

// Store exposes the underlying queue store.
func (m *Manager) Store() *queue.Store {
	return m.store
}
