package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
)

// heartbeats keeps processing tasks visibly alive and returns tasks whose
// worker went silent to the pending pool.
type heartbeats struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	mu          sync.Mutex
	lastReclaim time.Time
}

func newHeartbeats(store *queue.Store, logger *slog.Logger, interval, timeout time.Duration) *heartbeats {
	return &heartbeats{
		store:    store,
		logger:   logger.With(logging.String(logging.FieldComponent, "workflow-heartbeat")),
		interval: interval,
		timeout:  timeout,
	}
}

// reclaim resets stale processing tasks. Calls closer together than the
// heartbeat interval are skipped.
func (h *heartbeats) reclaim(ctx context.Context, logger *slog.Logger) error {
	if h.timeout <= 0 {
		return nil
	}
	now := time.Now()
	h.mu.Lock()
	if !h.lastReclaim.IsZero() && now.Sub(h.lastReclaim) < h.interval {
		h.mu.Unlock()
		return nil
	}
	h.lastReclaim = now
	h.mu.Unlock()

	reclaimed, err := h.store.ReclaimStaleProcessing(ctx, now.Add(-h.timeout))
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Info("reclaimed stale tasks",
			logging.Int64("count", reclaimed),
			logging.Duration("heartbeat_timeout", h.timeout),
			logging.String(logging.FieldEventType, "heartbeat_reclaimed"),
		)
	}
	return nil
}

// beat refreshes taskID's heartbeat in the background. The returned stop
// function blocks until the refresher has exited.
func (h *heartbeats) beat(ctx context.Context, taskID string) (stop func()) {
	if h.interval <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.refresh(ctx, taskID)
	}()
	return func() {
		cancel()
		<-done
	}
}

func (h *heartbeats) refresh(ctx context.Context, taskID string) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := logging.WithContext(ctx, h.logger).With(logging.String(logging.FieldTaskID, taskID))
	failures := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		err := h.store.UpdateHeartbeat(ctx, taskID)
		switch {
		case err == nil:
			failures = 0
		case errors.Is(err, context.Canceled):
			return
		default:
			failures++
			logger.Warn("heartbeat update failed",
				logging.Error(err),
				logging.Int("consecutive_failures", failures),
			)
		}
	}
}
