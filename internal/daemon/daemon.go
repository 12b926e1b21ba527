package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"voicenotes/internal/api"
	"voicenotes/internal/config"
	"voicenotes/internal/imports"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/preflight"
	"voicenotes/internal/queue"
	"voicenotes/internal/reconcile"
	"voicenotes/internal/scheduler"
	"voicenotes/internal/services"
	"voicenotes/internal/watcher"
	"voicenotes/internal/workflow"
)

// Options carries the optional collaborators the daemon coordinates.
type Options struct {
	Reconciler *reconcile.Reconciler
	Imports    *imports.Scanner
	Events     *notifications.EventBus
	LogPath    string
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	workflow   *workflow.Manager
	reconciler *reconcile.Reconciler
	imports    *imports.Scanner
	events     *notifications.EventBus
	scheduler  *scheduler.Scheduler
	watcher    *watcher.Watcher
	apiServer  *apiServer
	queueSvc   *api.QueueService
	recordSvc  *api.RecordService
	logPath    string

	lockPath string
	lock     *flock.Flock

	running  atomic.Bool
	mu       sync.Mutex
	started  time.Time
	cancel   context.CancelFunc
	done     chan struct{}
	doneOnce sync.Once
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, opts Options) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Events == nil {
		opts.Events = notifications.NewEventBus(cfg.Notifications.EventHistory)
	}

	d := &Daemon{
		cfg:        cfg,
		logger:     logging.NewComponentLogger(logger, "daemon"),
		store:      store,
		workflow:   wf,
		reconciler: opts.Reconciler,
		imports:    opts.Imports,
		events:     opts.Events,
		queueSvc:   api.NewQueueService(store),
		recordSvc:  api.NewRecordService(store),
		logPath:    opts.LogPath,
		lockPath:   cfg.LockPath(),
		lock:       flock.New(cfg.LockPath()),
		done:       make(chan struct{}),
	}

	jobs := scheduler.Jobs{Sync: wf, Purger: store}
	if opts.Reconciler != nil {
		jobs.Reconciler = opts.Reconciler
	}
	if opts.Imports != nil {
		jobs.Imports = opts.Imports
	}
	d.scheduler = scheduler.New(cfg, logger, jobs)

	if cfg.Sync.Watch {
		var importQueuer watcher.ImportQueuer
		if opts.Imports != nil {
			importQueuer = opts.Imports
		}
		d.watcher = watcher.New(cfg, store, logger, wf, importQueuer)
	}

	server, err := newAPIServer(cfg, d, logger)
	if err != nil {
		return nil, err
	}
	d.apiServer = server
	return d, nil
}

// Start acquires the daemon lock and launches the worker, scheduler, watcher,
// and HTTP API.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another voicenotes daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.scheduler.Start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start scheduler: %w", err)
	}
	if d.watcher != nil {
		if err := d.watcher.Start(runCtx); err != nil {
			logging.WarnWithContext(d.logger, "filesystem watcher unavailable", "watcher_start_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check that paths.notes_dir exists and inotify limits are sufficient"),
				logging.String(logging.FieldImpact, "new recordings are picked up by the next scheduled sync"),
			)
		}
	}
	if err := d.apiServer.start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "http api unavailable", "api_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind for a port conflict"),
			logging.String(logging.FieldImpact, "status is only available over the control socket"),
		)
	}

	d.mu.Lock()
	d.cancel = cancel
	d.started = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("voicenotes daemon started",
		logging.String("lock", d.lockPath),
		logging.String(logging.FieldEventType, "daemon_start"),
	)
	return nil
}

// Stop halts background work and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Swap(false) {
		return
	}
	d.mu.Lock()
	cancel := d.cancel
	d.cancel = nil
	d.mu.Unlock()

	if d.watcher != nil {
		d.watcher.Stop()
	}
	d.scheduler.Stop()
	d.apiServer.stop()
	if cancel != nil {
		cancel()
	}
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("voicenotes daemon stopped", logging.String(logging.FieldEventType, "daemon_stop"))
	d.doneOnce.Do(func() { close(d.done) })
}

// Done is closed after the first Stop.
func (d *Daemon) Done() <-chan struct{} {
	return d.done
}

// Close stops the daemon and closes the store.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// Running reports whether Start has succeeded and Stop has not been called.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Events exposes the in-memory event history.
func (d *Daemon) Events() *notifications.EventBus {
	return d.events
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) (api.DaemonStatus, error) {
	d.mu.Lock()
	started := d.started
	d.mu.Unlock()

	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		NotesDir:     d.cfg.Paths.NotesDir,
		Watching:     d.watcher != nil && d.watcher.Running(),
		LastEventSeq: d.events.LastSeq(),
	}
	if status.Running {
		status.StartedAt = api.FormatTime(started)
	}

	queueStatus, err := d.workflow.Status(ctx)
	status.Queue = api.FromQueueStatus(queueStatus)
	if err != nil {
		return status, err
	}

	for _, entry := range d.scheduler.Entries() {
		status.Schedule = append(status.Schedule, api.ScheduleEntry{
			Name:     entry.Name,
			Schedule: entry.Schedule,
			Next:     api.FormatTime(entry.Next),
			Prev:     api.FormatTime(entry.Prev),
		})
	}
	status.Dependencies = api.FromDependencies(preflight.CheckSystemDeps(d.cfg))
	return status, nil
}

// Pause stops workers from claiming new tasks.
func (d *Daemon) Pause() {
	d.workflow.Pause()
}

// Resume lets workers claim tasks again.
func (d *Daemon) Resume() {
	d.workflow.Resume()
}

// SetRecording toggles the live-recording flag that defers transcription.
func (d *Daemon) SetRecording(active bool) {
	d.workflow.SetRecording(active)
}

// EnqueueTranscription queues audioPath ahead of background work.
func (d *Daemon) EnqueueTranscription(ctx context.Context, audioPath string) (*api.Task, error) {
	task, err := d.workflow.EnqueueTranscription(ctx, audioPath, queue.PriorityHigh)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, nil
	}
	dto := api.FromTask(task)
	return &dto, nil
}

// SyncNow reconciles the notes tree immediately and returns the report.
// Without a reconciler it falls back to queueing a sync task.
func (d *Daemon) SyncNow(ctx context.Context) (api.SyncReport, bool, error) {
	if d.reconciler == nil {
		queued, err := d.workflow.EnqueueSync(ctx, true)
		return api.SyncReport{}, queued, err
	}
	report, err := d.reconciler.Reconcile(ctx)
	if err != nil {
		return api.FromSyncReport(report), false, err
	}
	return api.FromSyncReport(report), false, nil
}

// ScanImports queues any files waiting in the pending imports folder.
func (d *Daemon) ScanImports(ctx context.Context) (int, error) {
	if d.imports == nil {
		return 0, services.Wrap(services.ErrConfiguration, "daemon", "scan imports", "imports are disabled", nil)
	}
	return d.imports.ScanAndQueue(ctx)
}

// ListTasks returns tasks filtered by status.
func (d *Daemon) ListTasks(ctx context.Context, limit int, statuses []queue.TaskStatus) ([]api.Task, error) {
	return d.queueSvc.List(ctx, limit, statuses...)
}

// DescribeTask returns a single task or nil.
func (d *Daemon) DescribeTask(ctx context.Context, id string) (*api.Task, error) {
	return d.queueSvc.Describe(ctx, id)
}

// RetryFailed resets failed tasks, or the listed subset, back to pending.
func (d *Daemon) RetryFailed(ctx context.Context, ids []string) (int64, error) {
	return d.store.RetryFailed(ctx, ids...)
}

// ClearCompleted removes completed tasks.
func (d *Daemon) ClearCompleted(ctx context.Context) (int64, error) {
	return d.store.ClearCompleted(ctx)
}

// ClearFailed removes failed tasks.
func (d *Daemon) ClearFailed(ctx context.Context) (int64, error) {
	return d.store.ClearFailed(ctx)
}

// ResetStuck returns processing tasks to pending.
func (d *Daemon) ResetStuck(ctx context.Context) (int64, error) {
	return d.store.ResetStuckProcessing(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (api.DatabaseHealth, error) {
	return d.queueSvc.Health(ctx)
}

// ListRecords returns records, optionally filtered by status.
func (d *Daemon) ListRecords(ctx context.Context, status queue.RecordStatus, limit, offset int) ([]api.Record, error) {
	return d.recordSvc.List(ctx, status, limit, offset)
}

// ShowRecord returns one record or nil.
func (d *Daemon) ShowRecord(ctx context.Context, id string) (*api.Record, error) {
	return d.recordSvc.Show(ctx, id)
}

// SearchRecords returns transcripts matching query, most relevant first.
func (d *Daemon) SearchRecords(ctx context.Context, query string, limit int) ([]api.Record, error) {
	return d.recordSvc.Search(ctx, query, limit)
}

// RecordStats summarizes the record table.
func (d *Daemon) RecordStats(ctx context.Context) (api.RecordStats, error) {
	return d.recordSvc.Stats(ctx)
}

// EventsSince returns history entries newer than seq.
func (d *Daemon) EventsSince(seq int64) []api.Event {
	return api.FromEvents(d.events.Since(seq))
}

// TestNotification sends a test message through ntfy.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	notifier := notifications.NewService(d.cfg)
	if err := notifier.Publish(ctx, notifications.EventTest, notifications.Payload{"source": "voicenotes"}); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}
