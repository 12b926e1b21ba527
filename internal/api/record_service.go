package api

import (
	"context"
	"sort"
	"strings"

	"voicenotes/internal/queue"
	"voicenotes/internal/textutil"
)

// searchOverfetch widens the substring match so ranking has candidates to
// reorder before the result is cut to the requested limit.
const searchOverfetch = 4

// RecordReader abstracts record persistence needed for API queries.
type RecordReader interface {
	ListRecords(ctx context.Context, limit, offset int) ([]*queue.Record, error)
	ListRecordsByStatus(ctx context.Context, status queue.RecordStatus, limit, offset int) ([]*queue.Record, error)
	SearchRecords(ctx context.Context, query string, limit int) ([]*queue.Record, error)
	GetRecord(ctx context.Context, id string) (*queue.Record, error)
	RecordStats(ctx context.Context) (queue.RecordStats, error)
}

// RecordService exposes read-only record operations returning API DTOs.
type RecordService struct {
	store RecordReader
}

// NewRecordService constructs a RecordService around the provided reader.
func NewRecordService(store RecordReader) *RecordService {
	if store == nil {
		return nil
	}
	return &RecordService{store: store}
}

// List returns records newest first, optionally filtered by status.
func (s *RecordService) List(ctx context.Context, status queue.RecordStatus, limit, offset int) ([]Record, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	var (
		records []*queue.Record
		err     error
	)
	if status == "" {
		records, err = s.store.ListRecords(ctx, limit, offset)
	} else {
		records, err = s.store.ListRecordsByStatus(ctx, status, limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return FromRecords(records), nil
}

// Show fetches a single record.
func (s *RecordService) Show(ctx context.Context, id string) (*Record, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	rec, err := s.store.GetRecord(ctx, strings.TrimSpace(id))
	if err != nil || rec == nil {
		return nil, err
	}
	dto := FromRecord(rec)
	return &dto, nil
}

// Stats returns aggregate record statistics.
func (s *RecordService) Stats(ctx context.Context) (RecordStats, error) {
	if s == nil || s.store == nil {
		return RecordStats{}, nil
	}
	stats, err := s.store.RecordStats(ctx)
	if err != nil {
		return RecordStats{}, err
	}
	return FromRecordStats(stats), nil
}

// Search returns records whose transcript or path contains query, ranked by
// TF-IDF cosine similarity between the query and each transcript. Ties keep
// the store's newest-first order.
func (s *RecordService) Search(ctx context.Context, query string, limit int) ([]Record, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	records, err := s.store.SearchRecords(ctx, query, limit*searchOverfetch)
	if err != nil {
		return nil, err
	}
	ranked := RankByQuery(FromRecords(records), query)
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// RankByQuery scores records against query and sorts them best first.
func RankByQuery(records []Record, query string) []Record {
	if len(records) == 0 {
		return records
	}
	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Text
	}
	scores := textutil.Score(query, texts)

	out := make([]Record, len(records))
	copy(out, records)
	for i := range out {
		out[i].Score = scores[i]
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}
