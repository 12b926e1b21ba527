package queueaccess

import (
	"context"
	"fmt"
	"strings"

	"voicenotes/internal/api"
	"voicenotes/internal/ipc"
	"voicenotes/internal/queue"
)

// Access provides queue and note operations regardless of IPC or direct store backing.
type Access interface {
	Status(ctx context.Context) (api.QueueStatus, error)
	List(ctx context.Context, statuses []string, limit int) ([]api.Task, error)
	Describe(ctx context.Context, id string) (*api.Task, error)
	Retry(ctx context.Context, ids []string) (int64, error)
	ClearCompleted(ctx context.Context) (int64, error)
	ClearFailed(ctx context.Context) (int64, error)
	ResetStuck(ctx context.Context) (int64, error)
	Health(ctx context.Context) (api.DatabaseHealth, error)

	Records(ctx context.Context, status string, limit, offset int) ([]api.Record, error)
	Record(ctx context.Context, id string) (*api.Record, error)
	Search(ctx context.Context, query string, limit int) ([]api.Record, error)
	RecordStats(ctx context.Context) (api.RecordStats, error)
}

// NewIPCAccess returns an Access backed by daemon IPC.
func NewIPCAccess(client *ipc.Client) Access {
	return &ipcAccess{client: client}
}

// NewStoreAccess returns an Access backed by direct DB access.
func NewStoreAccess(store *queue.Store) Access {
	return &storeAccess{
		store:   store,
		tasks:   api.NewQueueService(store),
		records: api.NewRecordService(store),
	}
}

type ipcAccess struct {
	client *ipc.Client
}

func (a *ipcAccess) Status(_ context.Context) (api.QueueStatus, error) {
	resp, err := a.client.Status()
	if err != nil {
		return api.QueueStatus{}, err
	}
	return resp.Queue, nil
}

func (a *ipcAccess) List(_ context.Context, statuses []string, limit int) ([]api.Task, error) {
	resp, err := a.client.QueueList(statuses, limit)
	if err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

func (a *ipcAccess) Describe(_ context.Context, id string) (*api.Task, error) {
	resp, err := a.client.QueueDescribe(id)
	if err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

func (a *ipcAccess) Retry(_ context.Context, ids []string) (int64, error) {
	resp, err := a.client.QueueRetry(ids)
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) ClearCompleted(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear("completed")
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ClearFailed(_ context.Context) (int64, error) {
	resp, err := a.client.QueueClear("failed")
	if err != nil {
		return 0, err
	}
	return resp.Removed, nil
}

func (a *ipcAccess) ResetStuck(_ context.Context) (int64, error) {
	resp, err := a.client.QueueReset()
	if err != nil {
		return 0, err
	}
	return resp.Updated, nil
}

func (a *ipcAccess) Health(_ context.Context) (api.DatabaseHealth, error) {
	resp, err := a.client.DatabaseHealth()
	if err != nil {
		return api.DatabaseHealth{}, err
	}
	return *resp, nil
}

func (a *ipcAccess) Records(_ context.Context, status string, limit, offset int) ([]api.Record, error) {
	resp, err := a.client.RecordList(ipc.RecordListRequest{Status: status, Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (a *ipcAccess) Record(_ context.Context, id string) (*api.Record, error) {
	resp, err := a.client.RecordShow(id)
	if err != nil {
		return nil, err
	}
	return &resp.Record, nil
}

func (a *ipcAccess) Search(_ context.Context, query string, limit int) ([]api.Record, error) {
	resp, err := a.client.RecordSearch(query, limit)
	if err != nil {
		return nil, err
	}
	return resp.Records, nil
}

func (a *ipcAccess) RecordStats(_ context.Context) (api.RecordStats, error) {
	resp, err := a.client.RecordStats()
	if err != nil {
		return api.RecordStats{}, err
	}
	return *resp, nil
}

type storeAccess struct {
	store   *queue.Store
	tasks   *api.QueueService
	records *api.RecordService
}

func (a *storeAccess) Status(ctx context.Context) (api.QueueStatus, error) {
	return a.tasks.Status(ctx)
}

func (a *storeAccess) List(ctx context.Context, statuses []string, limit int) ([]api.Task, error) {
	filters := make([]queue.TaskStatus, 0, len(statuses))
	for _, s := range statuses {
		parsed, ok := queue.ParseTaskStatus(s)
		if !ok {
			return nil, fmt.Errorf("unknown task status %q", s)
		}
		filters = append(filters, parsed)
	}
	return a.tasks.List(ctx, limit, filters...)
}

func (a *storeAccess) Describe(ctx context.Context, id string) (*api.Task, error) {
	task, err := a.tasks.Describe(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("task %s not found", id)
	}
	return task, nil
}

func (a *storeAccess) Retry(ctx context.Context, ids []string) (int64, error) {
	return a.store.RetryFailed(ctx, ids...)
}

func (a *storeAccess) ClearCompleted(ctx context.Context) (int64, error) {
	return a.store.ClearCompleted(ctx)
}

func (a *storeAccess) ClearFailed(ctx context.Context) (int64, error) {
	return a.store.ClearFailed(ctx)
}

func (a *storeAccess) ResetStuck(ctx context.Context) (int64, error) {
	return a.store.ResetStuckProcessing(ctx)
}

func (a *storeAccess) Health(ctx context.Context) (api.DatabaseHealth, error) {
	return a.tasks.Health(ctx)
}

func (a *storeAccess) Records(ctx context.Context, status string, limit, offset int) ([]api.Record, error) {
	var filter queue.RecordStatus
	if strings.TrimSpace(status) != "" {
		parsed, ok := queue.ParseRecordStatus(status)
		if !ok {
			return nil, fmt.Errorf("unknown record status %q", status)
		}
		filter = parsed
	}
	return a.records.List(ctx, filter, limit, offset)
}

func (a *storeAccess) Record(ctx context.Context, id string) (*api.Record, error) {
	rec, err := a.records.Show(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("record %s not found", id)
	}
	return rec, nil
}

func (a *storeAccess) Search(ctx context.Context, query string, limit int) ([]api.Record, error) {
	return a.records.Search(ctx, query, limit)
}

func (a *storeAccess) RecordStats(ctx context.Context) (api.RecordStats, error) {
	return a.records.Stats(ctx)
}
