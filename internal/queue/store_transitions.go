package queue

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// interruptedMessage is recorded on tasks whose retry budget ran out while
// they were processing at shutdown.
const interruptedMessage = "interrupted by daemon restart; retry budget exhausted"

// ResetStuckProcessing returns every processing task to pending. It runs at
// startup, when no worker can legitimately hold a claim. The interrupted run
// counts as an attempt, so a task that keeps killing the daemon ends up
// failed once its retry budget is spent.
func (s *Store) ResetStuckProcessing(ctx context.Context) (int64, error) {
	return s.requeueProcessing(ctx, true, "", nil)
}

// ReclaimStaleProcessing returns processing tasks whose heartbeat is older
// than cutoff to pending.
func (s *Store) ReclaimStaleProcessing(ctx context.Context, cutoff time.Time) (int64, error) {
	return s.requeueProcessing(ctx, false, ` AND (last_heartbeat IS NULL OR last_heartbeat < ?)`, []any{formatTime(cutoff)})
}

// requeueProcessing releases processing claims matching extra and returns
// how many tasks went back to pending or, when countAttempt is set and the
// budget is spent, to failed.
func (s *Store) requeueProcessing(ctx context.Context, countAttempt bool, extra string, extraArgs []any) (int64, error) {
	ctx = ensureContext(ctx)
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		exhausted := `0`
		if countAttempt {
			exhausted = `retry_count >= max_retries`
		}

		failArgs := append([]any{interruptedMessage, now}, extraArgs...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE transcriptions SET status = 'failed', error_message = ?, updated_at = ?
             WHERE status != 'complete' AND id IN (
                 SELECT transcription_id FROM background_tasks
                 WHERE status = 'processing' AND `+exhausted+` AND task_type IN ('transcribe_orphan', 'transcribe_imported')`+extra+`
             )`, failArgs...); err != nil {
			return fmt.Errorf("fail interrupted records: %w", err)
		}
		pendingArgs := append([]any{now}, extraArgs...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE transcriptions SET status = 'pending', updated_at = ?
             WHERE status = 'processing' AND id IN (
                 SELECT transcription_id FROM background_tasks
                 WHERE status = 'processing' AND NOT (`+exhausted+`)`+extra+`
             )`, pendingArgs...); err != nil {
			return fmt.Errorf("reset processing records: %w", err)
		}

		var total int64
		res, err := tx.ExecContext(ctx,
			`UPDATE background_tasks SET status = 'failed', error_message = ?, completed_at = ?, last_heartbeat = NULL
             WHERE status = 'processing' AND `+exhausted+extra, failArgs...)
		if err != nil {
			return fmt.Errorf("fail interrupted tasks: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		total += n

		increment := `retry_count`
		if countAttempt {
			increment = `retry_count + 1`
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE background_tasks SET status = 'pending', retry_count = `+increment+`, started_at = NULL, last_heartbeat = NULL
             WHERE status = 'processing'`+extra, extraArgs...)
		if err != nil {
			return fmt.Errorf("reset processing tasks: %w", err)
		}
		n, err = res.RowsAffected()
		if err != nil {
			return err
		}
		affected = total + n
		return nil
	})
	return affected, err
}

// UpdateHeartbeat updates the last heartbeat timestamp for an in-flight task.
func (s *Store) UpdateHeartbeat(ctx context.Context, taskID string) error {
	if _, err := s.exec(ctx,
		`UPDATE background_tasks SET last_heartbeat = ? WHERE id = ? AND status = 'processing'`,
		nowString(), taskID,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}
