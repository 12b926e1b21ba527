package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"voicenotes/internal/logging"
)

// Start launches the worker loops. Stale claims left by a previous process
// are returned to pending first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.handlers) == 0 {
		m.mu.Unlock()
		return errors.New("workflow handlers not configured")
	}

	reset, err := m.store.ResetStuckProcessing(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("reset stuck tasks: %w", err)
	}
	if reset > 0 {
		m.logger.Info("released tasks left processing by a previous run",
			logging.Int64("count", reset),
			logging.String(logging.FieldEventType, "startup_requeue"),
		)
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(m.workers)
	m.mu.Unlock()

	m.runPreflightChecks(runCtx, m.logger)

	for i := range m.workers {
		logger := m.logger.With(logging.Int("worker", i))
		go m.runWorker(runCtx, logger, i == 0)
	}
	m.logger.Info("workflow started", logging.Int("workers", m.workers))
	return nil
}

// Stop prevents new claims and waits for in-flight tasks to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow stopped")
}

// Running reports whether worker loops are active.
func (m *Manager) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger, reclaimer bool) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if m.paused.Load() {
			m.sleep(ctx, m.pausedInterval)
			continue
		}
		if m.recording.Load() {
			m.sleep(ctx, m.busyInterval)
			continue
		}

		if reclaimer {
			if err := m.heartbeat.reclaim(ctx, logger); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(logger, "reclaim stale tasks failed; stuck tasks may remain", "heartbeat_reclaim_failed",
					logging.Error(err),
					logging.String(logging.FieldErrorHint, "check queue database access"),
					logging.String(logging.FieldImpact, "tasks from a crashed worker stay processing until the next attempt"),
				)
			}
		}

		task, err := m.store.ClaimNext(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.handleClaimError(ctx, logger, err)
			continue
		}
		if task == nil {
			m.sleep(ctx, m.pollInterval)
			continue
		}

		m.processTask(ctx, logger, task)
	}
}

func (m *Manager) handleClaimError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logging.ErrorWithContext(logger, "failed to claim next task", "queue_claim_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	m.sleep(ctx, m.errorRetryInterval)
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = 10 * time.Millisecond
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
