package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

func normalizeRecord(rec *Record) {
	if rec.Language == "" {
		rec.Language = DefaultLanguage
	}
	if rec.Model == "" {
		rec.Model = DefaultModel
	}
	if rec.Status == "" {
		rec.Status = RecordPending
	}
	if rec.Source == "" {
		rec.Source = SourceOrphan
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.Status != RecordFailed {
		rec.ErrorMessage = ""
	}
}

// PutRecord inserts a record or replaces an existing one. The original
// source and the first transcribed_at survive replacement.
func (s *Store) PutRecord(ctx context.Context, rec *Record) error {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return errors.New("put record: id is required")
	}
	normalizeRecord(rec)
	now := nowString()
	_, err := s.exec(ctx,
		`INSERT INTO transcriptions (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO UPDATE SET
             audio_path = excluded.audio_path,
             text_path = excluded.text_path,
             transcription_text = excluded.transcription_text,
             created_at = excluded.created_at,
             transcribed_at = COALESCE(transcriptions.transcribed_at, excluded.transcribed_at),
             duration_seconds = excluded.duration_seconds,
             file_size_bytes = excluded.file_size_bytes,
             language = excluded.language,
             model = excluded.model,
             status = excluded.status,
             error_message = excluded.error_message,
             missing = excluded.missing,
             metadata_json = excluded.metadata_json,
             updated_at = excluded.updated_at`,
		rec.ID,
		rec.AudioPath,
		nullableString(rec.TextPath),
		nullableString(rec.Text),
		formatTime(rec.CreatedAt),
		nullableTime(rec.TranscribedAt),
		rec.DurationSeconds,
		rec.FileSizeBytes,
		rec.Language,
		rec.Model,
		string(rec.Status),
		string(rec.Source),
		nullableString(rec.ErrorMessage),
		boolToInt(rec.Missing),
		nullableString(rec.MetadataJSON),
		now,
	)
	if err != nil {
		return fmt.Errorf("put record %s: %w", rec.ID, err)
	}
	return nil
}

// InsertRecord adds a record only when its id is unused. It reports whether
// a row was created.
func (s *Store) InsertRecord(ctx context.Context, rec *Record) (bool, error) {
	if rec == nil || strings.TrimSpace(rec.ID) == "" {
		return false, errors.New("insert record: id is required")
	}
	normalizeRecord(rec)
	res, err := s.exec(ctx,
		`INSERT INTO transcriptions (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT(id) DO NOTHING`,
		rec.ID,
		rec.AudioPath,
		nullableString(rec.TextPath),
		nullableString(rec.Text),
		formatTime(rec.CreatedAt),
		nullableTime(rec.TranscribedAt),
		rec.DurationSeconds,
		rec.FileSizeBytes,
		rec.Language,
		rec.Model,
		string(rec.Status),
		string(rec.Source),
		nullableString(rec.ErrorMessage),
		boolToInt(rec.Missing),
		nullableString(rec.MetadataJSON),
		nowString(),
	)
	if err != nil {
		return false, fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// GetRecord fetches a record by id. A missing record yields nil, nil.
func (s *Store) GetRecord(ctx context.Context, id string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM transcriptions WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record %s: %w", id, err)
	}
	return rec, nil
}

// FindRecordByAudioPath returns the record backed by a store-relative path.
func (s *Store) FindRecordByAudioPath(ctx context.Context, audioPath string) (*Record, error) {
	row := s.db.QueryRowContext(ensureContext(ctx),
		`SELECT `+recordColumns+` FROM transcriptions WHERE audio_path = ? ORDER BY created_at LIMIT 1`, audioPath)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find record by path: %w", err)
	}
	return rec, nil
}

// ListRecordsByStatus returns records with the given status, newest first.
func (s *Store) ListRecordsByStatus(ctx context.Context, status RecordStatus, limit, offset int) ([]*Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM transcriptions WHERE status = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		string(status), normalizeLimit(limit), max(offset, 0))
}

// ListRecords returns all records, newest first.
func (s *Store) ListRecords(ctx context.Context, limit, offset int) ([]*Record, error) {
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM transcriptions ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		normalizeLimit(limit), max(offset, 0))
}

// SearchRecords performs a case-insensitive substring match over transcript text.
func (s *Store) SearchRecords(ctx context.Context, query string, limit int) ([]*Record, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM transcriptions
         WHERE transcription_text LIKE ? ESCAPE '\'
         ORDER BY created_at DESC LIMIT ?`,
		"%"+escapeLike(query)+"%", normalizeLimit(limit))
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]*Record, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// UpdateRecordStatus sets a record's status. The error message is stored only
// for failed records and cleared otherwise.
func (s *Store) UpdateRecordStatus(ctx context.Context, id string, status RecordStatus, errMsg string) error {
	if status != RecordFailed {
		errMsg = ""
	}
	res, err := s.exec(ctx,
		`UPDATE transcriptions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		string(status), nullableString(errMsg), nowString(), id)
	if err != nil {
		return fmt.Errorf("update record status: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update record status %s: %w", id, ErrRecordNotFound)
	}
	return nil
}

// UpdateRecordFromDisk refreshes the fields the filesystem is authoritative
// for. A complete record is never demoted, and transcribed_at is only set
// once.
func (s *Store) UpdateRecordFromDisk(ctx context.Context, rec *Record) error {
	if rec == nil {
		return errors.New("update record from disk: nil record")
	}
	now := nowString()
	var transcribedAt any
	if rec.Status == RecordComplete {
		transcribedAt = nullableTime(rec.TranscribedAt)
		if transcribedAt == nil {
			transcribedAt = now
		}
	}
	res, err := s.exec(ctx,
		`UPDATE transcriptions SET
             audio_path = ?,
             status = CASE WHEN status = 'complete' THEN status ELSE ? END,
             error_message = CASE WHEN ? = 'complete' THEN NULL ELSE error_message END,
             text_path = COALESCE(?, text_path),
             transcription_text = COALESCE(?, transcription_text),
             transcribed_at = COALESCE(transcribed_at, ?),
             file_size_bytes = ?,
             duration_seconds = CASE WHEN ? > 0 THEN ? ELSE duration_seconds END,
             metadata_json = COALESCE(?, metadata_json),
             missing = ?,
             updated_at = ?
         WHERE id = ?`,
		rec.AudioPath,
		string(rec.Status),
		string(rec.Status),
		nullableString(rec.TextPath),
		nullableString(rec.Text),
		transcribedAt,
		rec.FileSizeBytes,
		rec.DurationSeconds, rec.DurationSeconds,
		nullableString(rec.MetadataJSON),
		boolToInt(rec.Missing),
		now,
		rec.ID,
	)
	if err != nil {
		return fmt.Errorf("update record %s from disk: %w", rec.ID, err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update record %s from disk: %w", rec.ID, ErrRecordNotFound)
	}
	return nil
}

// UpdateRecordText stores transcript text edited on disk.
func (s *Store) UpdateRecordText(ctx context.Context, id, textPath, text string) error {
	now := nowString()
	res, err := s.exec(ctx,
		`UPDATE transcriptions SET
             transcription_text = ?, text_path = ?, status = 'complete', error_message = NULL,
             transcribed_at = COALESCE(transcribed_at, ?), updated_at = ?
         WHERE id = ?`,
		text, textPath, now, now, id)
	if err != nil {
		return fmt.Errorf("update record text: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return fmt.Errorf("update record text %s: %w", id, ErrRecordNotFound)
	}
	return nil
}

// MarkRecordMissing soft-deletes a record whose audio vanished. It reports
// whether the record changed.
func (s *Store) MarkRecordMissing(ctx context.Context, id string) (bool, error) {
	res, err := s.exec(ctx,
		`UPDATE transcriptions SET missing = 1, status = 'orphaned', error_message = NULL, updated_at = ?
         WHERE id = ? AND missing = 0`,
		nowString(), id)
	if err != nil {
		return false, fmt.Errorf("mark record missing: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// DeleteRecord removes a record and any tasks still tied to it.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM background_tasks WHERE transcription_id = ? AND status != 'processing'`, id); err != nil {
			return fmt.Errorf("delete record tasks: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE id = ?`, id); err != nil {
			return fmt.Errorf("delete record: %w", err)
		}
		return nil
	})
}

// AllRecordIDs returns every record id.
func (s *Store) AllRecordIDs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT id FROM transcriptions`)
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// RecordStats summarizes counts, sizes, and durations.
func (s *Store) RecordStats(ctx context.Context) (RecordStats, error) {
	ctx = ensureContext(ctx)
	stats := RecordStats{ByStatus: make(map[RecordStatus]int)}
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(file_size_bytes), 0), COALESCE(SUM(duration_seconds), 0),
                COALESCE(SUM(missing), 0), MIN(created_at), MAX(created_at)
         FROM transcriptions`,
	).Scan(&stats.Total, &stats.TotalBytes, &stats.TotalSeconds, &stats.Missing, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("record stats: %w", err)
	}
	stats.OldestCreatedAt = parseNullableTime(oldest)
	stats.NewestCreatedAt = parseNullableTime(newest)

	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM transcriptions GROUP BY status`)
	if err != nil {
		return stats, fmt.Errorf("record stats by status: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.ByStatus[RecordStatus(status)] = count
	}
	return stats, rows.Err()
}

// CleanupDuplicates removes records that point at the same audio file,
// keeping a complete record when one exists and otherwise the oldest.
func (s *Store) CleanupDuplicates(ctx context.Context) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		removed = 0
		const duplicates = `SELECT id FROM (
                SELECT id, ROW_NUMBER() OVER (
                    PARTITION BY audio_path
                    ORDER BY CASE status WHEN 'complete' THEN 0 ELSE 1 END, created_at, id
                ) AS rn
                FROM transcriptions
            ) WHERE rn > 1`
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM background_tasks WHERE status != 'processing' AND transcription_id IN (`+duplicates+`)`); err != nil {
			return fmt.Errorf("delete duplicate tasks: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM transcriptions WHERE id IN (`+duplicates+`)`)
		if err != nil {
			return fmt.Errorf("delete duplicate records: %w", err)
		}
		removed, err = res.RowsAffected()
		return err
	})
	return removed, err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
