package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewTask builds a pending task for the given payload.
func NewTask(transcriptionID string, payload Payload, priority Priority, maxRetries int) *Task {
	return &Task{
		TranscriptionID: transcriptionID,
		Payload:         payload,
		Priority:        priority,
		MaxRetries:      maxRetries,
	}
}

func (s *Store) prepareTask(task *Task) (string, error) {
	if task == nil {
		return "", errors.New("enqueue: nil task")
	}
	if strings.TrimSpace(task.TranscriptionID) == "" {
		return "", errors.New("enqueue: transcription id is required")
	}
	taskType, payload, err := encodePayload(task.Payload)
	if err != nil {
		return "", err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.MaxRetries < 0 {
		task.MaxRetries = 0
	}
	task.Type = taskType
	task.Status = TaskPending
	task.RetryCount = 0
	task.CreatedAt = time.Now().UTC()
	task.StartedAt = nil
	task.CompletedAt = nil
	return payload, nil
}

// Enqueue persists a new pending task.
func (s *Store) Enqueue(ctx context.Context, task *Task) error {
	payload, err := s.prepareTask(task)
	if err != nil {
		return err
	}
	if _, err := s.exec(ctx,
		`INSERT INTO background_tasks (id, transcription_id, task_type, payload, priority, status, retry_count, max_retries, created_at)
         VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, ?)`,
		task.ID, task.TranscriptionID, string(task.Type), payload, int(task.Priority), task.MaxRetries, formatTime(task.CreatedAt),
	); err != nil {
		return fmt.Errorf("enqueue %s task: %w", task.Type, err)
	}
	return nil
}

// EnqueueUnique persists a task unless an unresolved task (pending,
// processing, or failed) already exists for the same transcription id. The
// check and insert are a single statement.
func (s *Store) EnqueueUnique(ctx context.Context, task *Task) (bool, error) {
	payload, err := s.prepareTask(task)
	if err != nil {
		return false, err
	}
	res, err := s.exec(ctx,
		`INSERT INTO background_tasks (id, transcription_id, task_type, payload, priority, status, retry_count, max_retries, created_at)
         SELECT ?, ?, ?, ?, ?, 'pending', 0, ?, ?
         WHERE NOT EXISTS (
             SELECT 1 FROM background_tasks
             WHERE transcription_id = ? AND status IN ('pending', 'processing', 'failed')
         )`,
		task.ID, task.TranscriptionID, string(task.Type), payload, int(task.Priority), task.MaxRetries, formatTime(task.CreatedAt),
		task.TranscriptionID,
	)
	if err != nil {
		return false, fmt.Errorf("enqueue %s task: %w", task.Type, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// ClaimNext atomically moves the highest-priority, oldest pending task to
// processing and returns it. It returns nil, nil when nothing is pending.
func (s *Store) ClaimNext(ctx context.Context) (*Task, error) {
	ctx = ensureContext(ctx)
	task, err := withBusyRetry(ctx, func() (*Task, error) {
		now := nowString()
		row := s.db.QueryRowContext(ctx,
			`UPDATE background_tasks
             SET status = 'processing', started_at = ?, last_heartbeat = ?, completed_at = NULL
             WHERE id = (
                 SELECT id FROM background_tasks
                 WHERE status = 'pending'
                 ORDER BY priority DESC, created_at ASC, rowid ASC
                 LIMIT 1
             ) AND status = 'pending'
             RETURNING `+taskColumns,
			now, now)
		claimed, err := scanTask(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return claimed, err
	})
	if err != nil {
		return nil, fmt.Errorf("claim next task: %w", err)
	}
	return task, nil
}

// CompleteTranscription marks a processing transcription task completed and
// resolves its record in one transaction. Either both rows change or
// neither does.
func (s *Store) CompleteTranscription(ctx context.Context, taskID, recordID string, result TranscriptionResult) error {
	ctx = ensureContext(ctx)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		res, err := tx.ExecContext(ctx,
			`UPDATE background_tasks
             SET status = 'completed', completed_at = ?, error_message = NULL, last_heartbeat = NULL
             WHERE id = ? AND status = 'processing'`,
			now, taskID)
		if err != nil {
			return fmt.Errorf("complete task: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("complete task %s: %w", taskID, ErrInvalidTransition)
		}

		language := result.Language
		if language == "" {
			language = DefaultLanguage
		}
		model := result.Model
		if model == "" {
			model = DefaultModel
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE transcriptions SET
                 status = 'complete',
                 transcription_text = ?,
                 text_path = COALESCE(?, text_path),
                 language = ?,
                 model = ?,
                 duration_seconds = CASE WHEN ? > 0 THEN ? ELSE duration_seconds END,
                 transcribed_at = COALESCE(transcribed_at, ?),
                 error_message = NULL,
                 missing = 0,
                 updated_at = ?
             WHERE id = ?`,
			result.Text,
			nullableString(result.TextPath),
			language,
			model,
			result.DurationSeconds, result.DurationSeconds,
			now,
			now,
			recordID)
		if err != nil {
			return fmt.Errorf("complete record: %w", err)
		}
		if affected, _ := res.RowsAffected(); affected == 0 {
			return fmt.Errorf("complete record %s: %w", recordID, ErrRecordNotFound)
		}
		return nil
	})
}

// CompleteTask marks a non-transcription task completed.
func (s *Store) CompleteTask(ctx context.Context, taskID string) error {
	res, err := s.exec(ctx,
		`UPDATE background_tasks
         SET status = 'completed', completed_at = ?, error_message = NULL, last_heartbeat = NULL
         WHERE id = ? AND status = 'processing'`,
		nowString(), taskID)
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("complete task %s: %w", taskID, ErrInvalidTransition)
	}
	return nil
}

// FailAttempt records a failed execution. While retries remain the task
// returns to pending with retry_count incremented; otherwise, or when
// retryable is false, it becomes failed and a transcription record follows
// it into the failed state. The resulting task status is returned.
func (s *Store) FailAttempt(ctx context.Context, taskID, errMsg string, retryable bool) (TaskStatus, error) {
	ctx = ensureContext(ctx)
	var final TaskStatus
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		var (
			status          string
			taskType        string
			transcriptionID string
		)
		err := tx.QueryRowContext(ctx,
			`UPDATE background_tasks SET
                 status = CASE WHEN ? AND retry_count < max_retries THEN 'pending' ELSE 'failed' END,
                 retry_count = CASE WHEN ? AND retry_count < max_retries THEN retry_count + 1 ELSE retry_count END,
                 completed_at = CASE WHEN ? AND retry_count < max_retries THEN NULL ELSE ? END,
                 started_at = CASE WHEN ? AND retry_count < max_retries THEN NULL ELSE started_at END,
                 error_message = ?,
                 last_heartbeat = NULL
             WHERE id = ? AND status = 'processing'
             RETURNING status, task_type, transcription_id`,
			retryable, retryable, retryable, now, retryable, nullableString(errMsg), taskID,
		).Scan(&status, &taskType, &transcriptionID)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("fail task %s: %w", taskID, ErrInvalidTransition)
		}
		if err != nil {
			return fmt.Errorf("fail task: %w", err)
		}
		final = TaskStatus(status)
		if !TaskType(taskType).IsTranscription() {
			return nil
		}
		recordStatus := RecordPending
		recordErr := any(nil)
		if final == TaskFailed {
			recordStatus = RecordFailed
			recordErr = nullableString(errMsg)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE transcriptions SET status = ?, error_message = ?, updated_at = ?
             WHERE id = ? AND status != 'complete'`,
			string(recordStatus), recordErr, now, transcriptionID); err != nil {
			return fmt.Errorf("update record after failure: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return final, nil
}

// RetryTask moves one failed task back to pending with a fresh retry budget.
func (s *Store) RetryTask(ctx context.Context, taskID string) error {
	affected, err := s.RetryFailed(ctx, taskID)
	if err != nil {
		return err
	}
	if affected > 0 {
		return nil
	}
	task, err := s.GetTask(ctx, taskID)
	if err != nil {
		return err
	}
	if task == nil {
		return fmt.Errorf("retry task %s: %w", taskID, ErrTaskNotFound)
	}
	return fmt.Errorf("retry task %s in status %s: %w", taskID, task.Status, ErrInvalidTransition)
}

// RetryFailed moves failed tasks back to pending with retry_count reset.
// With no ids every failed task is retried. Records of transcription tasks
// return to pending.
func (s *Store) RetryFailed(ctx context.Context, ids ...string) (int64, error) {
	ctx = ensureContext(ctx)
	where := `status = 'failed'`
	args := []any{}
	if len(ids) > 0 {
		where += ` AND id IN (` + makePlaceholders(len(ids)) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	var affected int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := nowString()
		recordArgs := append([]any{now}, args...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE transcriptions SET status = 'pending', error_message = NULL, updated_at = ?
             WHERE status = 'failed' AND id IN (
                 SELECT transcription_id FROM background_tasks
                 WHERE `+where+` AND task_type IN ('transcribe_orphan', 'transcribe_imported')
             )`, recordArgs...); err != nil {
			return fmt.Errorf("reset failed records: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE background_tasks
             SET status = 'pending', retry_count = 0, started_at = NULL, completed_at = NULL, last_heartbeat = NULL
             WHERE `+where, args...)
		if err != nil {
			return fmt.Errorf("retry failed tasks: %w", err)
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

// GetTask fetches a task by id. A missing task yields nil, nil.
func (s *Store) GetTask(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+taskColumns+` FROM background_tasks WHERE id = ?`, id)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task %s: %w", id, err)
	}
	return task, nil
}

// ListTasks returns tasks ordered processing, pending, failed, completed,
// then by priority and most recent creation.
func (s *Store) ListTasks(ctx context.Context, limit, offset int, statuses ...TaskStatus) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM background_tasks`
	args := []any{}
	if len(statuses) > 0 {
		query += ` WHERE status IN (` + makePlaceholders(len(statuses)) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY CASE status
                 WHEN 'processing' THEN 0
                 WHEN 'pending' THEN 1
                 WHEN 'failed' THEN 2
                 ELSE 3
             END, priority DESC, created_at DESC, rowid DESC
             LIMIT ? OFFSET ?`
	args = append(args, normalizeLimit(limit), max(offset, 0))

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ActiveTask returns the most recently started processing task, if any.
func (s *Store) ActiveTask(ctx context.Context) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM background_tasks WHERE status = 'processing' ORDER BY started_at DESC LIMIT 1`)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("active task: %w", err)
	}
	return task, nil
}

// HasOpenTask reports whether a pending or processing task exists for the id.
func (s *Store) HasOpenTask(ctx context.Context, transcriptionID string) (bool, error) {
	return s.hasTask(ctx, transcriptionID, TaskPending, TaskProcessing)
}

// HasUnresolvedTask reports whether a pending, processing, or failed task
// exists for the id.
func (s *Store) HasUnresolvedTask(ctx context.Context, transcriptionID string) (bool, error) {
	return s.hasTask(ctx, transcriptionID, TaskPending, TaskProcessing, TaskFailed)
}

func (s *Store) hasTask(ctx context.Context, transcriptionID string, statuses ...TaskStatus) (bool, error) {
	args := []any{transcriptionID}
	for _, status := range statuses {
		args = append(args, string(status))
	}
	var exists int
	err := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT EXISTS(SELECT 1 FROM background_tasks WHERE transcription_id = ? AND status IN (`+makePlaceholders(len(statuses))+`))`,
		args...).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check tasks for %s: %w", transcriptionID, err)
	}
	return exists == 1, nil
}

// Counts returns task totals per status.
func (s *Store) Counts(ctx context.Context) (QueueCounts, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM background_tasks GROUP BY status`)
	if err != nil {
		return QueueCounts{}, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	var counts QueueCounts
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return QueueCounts{}, err
		}
		counts.Total += count
		switch TaskStatus(status) {
		case TaskPending:
			counts.Pending = count
		case TaskProcessing:
			counts.Processing = count
		case TaskCompleted:
			counts.Completed = count
		case TaskFailed:
			counts.Failed = count
		}
	}
	return counts, rows.Err()
}

// ClearCompleted deletes completed tasks.
func (s *Store) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM background_tasks WHERE status = 'completed'`)
	if err != nil {
		return 0, fmt.Errorf("clear completed tasks: %w", err)
	}
	return res.RowsAffected()
}

// ClearFailed deletes failed tasks.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM background_tasks WHERE status = 'failed'`)
	if err != nil {
		return 0, fmt.Errorf("clear failed tasks: %w", err)
	}
	return res.RowsAffected()
}

// PurgeCompletedBefore deletes completed tasks that finished before cutoff.
func (s *Store) PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		`DELETE FROM background_tasks WHERE status = 'completed' AND completed_at IS NOT NULL AND completed_at < ?`,
		formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge completed tasks: %w", err)
	}
	return res.RowsAffected()
}

// UnresolvedTaskFor returns the newest pending, processing, or failed task
// for a transcription id, or nil when none exists.
func (s *Store) UnresolvedTaskFor(ctx context.Context, transcriptionID string) (*Task, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+taskColumns+` FROM background_tasks
         WHERE transcription_id = ? AND status IN ('pending', 'processing', 'failed')
         ORDER BY created_at DESC, rowid DESC LIMIT 1`, transcriptionID)
	task, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("unresolved task for %s: %w", transcriptionID, err)
	}
	return task, nil
}

// RaisePriority lifts a pending task to at least priority. Lower values are
// ignored so an explicit request never demotes queued work.
func (s *Store) RaisePriority(ctx context.Context, taskID string, priority Priority) error {
	if _, err := s.exec(ctx,
		`UPDATE background_tasks SET priority = MAX(priority, ?) WHERE id = ? AND status = 'pending'`,
		int(priority), taskID,
	); err != nil {
		return fmt.Errorf("raise priority: %w", err)
	}
	return nil
}
