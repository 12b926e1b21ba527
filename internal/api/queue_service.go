package api

import (
	"context"

	"voicenotes/internal/queue"
)

// QueueReader abstracts queue persistence interactions needed for API queries.
type QueueReader interface {
	ListTasks(ctx context.Context, limit, offset int, statuses ...queue.TaskStatus) ([]*queue.Task, error)
	GetTask(ctx context.Context, id string) (*queue.Task, error)
	Counts(ctx context.Context) (queue.QueueCounts, error)
	CheckHealth(ctx context.Context) (queue.DatabaseHealth, error)
}

// QueueService exposes read-only queue operations returning API DTOs.
type QueueService struct {
	store QueueReader
}

// NewQueueService constructs a QueueService around the provided reader.
func NewQueueService(store QueueReader) *QueueService {
	if store == nil {
		return nil
	}
	return &QueueService{store: store}
}

// List returns tasks filtered by status, highest priority first.
func (s *QueueService) List(ctx context.Context, limit int, statuses ...queue.TaskStatus) ([]Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	tasks, err := s.store.ListTasks(ctx, limit, 0, statuses...)
	if err != nil {
		return nil, err
	}
	return FromTasks(tasks), nil
}

// Status returns queue counts without worker flags.
func (s *QueueService) Status(ctx context.Context) (QueueStatus, error) {
	if s == nil || s.store == nil {
		return QueueStatus{}, nil
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return QueueStatus{}, err
	}
	return FromQueueCounts(counts), nil
}

// Describe fetches a single task.
func (s *QueueService) Describe(ctx context.Context, id string) (*Task, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil || task == nil {
		return nil, err
	}
	dto := FromTask(task)
	return &dto, nil
}

// Health returns database diagnostics.
func (s *QueueService) Health(ctx context.Context) (DatabaseHealth, error) {
	if s == nil || s.store == nil {
		return DatabaseHealth{}, nil
	}
	health, err := s.store.CheckHealth(ctx)
	if err != nil {
		return DatabaseHealth{}, err
	}
	return FromDatabaseHealth(health), nil
}
