// Package scheduler runs the daemon's periodic maintenance: the startup
// reconciliation, recurring filesystem syncs, and completed-task retention.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"voicenotes/internal/config"
	"voicenotes/internal/logging"
	"voicenotes/internal/reconcile"
)

var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ParseSchedule accepts 5- or 6-field cron expressions and descriptors such
// as "@every 5m" or "@hourly".
func ParseSchedule(expr string) (cron.Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, fmt.Errorf("empty schedule")
	}
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid schedule %q: %w", expr, err)
	}
	return schedule, nil
}

// SyncEnqueuer queues a filesystem sync task.
type SyncEnqueuer interface {
	EnqueueSync(ctx context.Context, fullScan bool) (bool, error)
}

// Reconciler runs a reconciliation pass directly.
type Reconciler interface {
	Reconcile(ctx context.Context) (reconcile.SyncReport, error)
}

// ImportScanner queues everything waiting in the imports folder.
type ImportScanner interface {
	ScanAndQueue(ctx context.Context) (int, error)
}

// Purger removes completed tasks finished before cutoff.
type Purger interface {
	PurgeCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Jobs bundles the collaborators the scheduler drives. Nil fields skip the
// matching work.
type Jobs struct {
	Sync       SyncEnqueuer
	Reconciler Reconciler
	Imports    ImportScanner
	Purger     Purger
}

// Entry describes one registered job.
type Entry struct {
	Name     string    `json:"name"`
	Schedule string    `json:"schedule"`
	Next     time.Time `json:"next"`
	Prev     time.Time `json:"prev"`
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cfg    *config.Config
	logger *slog.Logger
	jobs   Jobs
	now    func() time.Time

	mu      sync.Mutex
	cron    *cron.Cron
	entries map[string]cron.EntryID
	specs   map[string]string
	startup *time.Timer
	cancel  context.CancelFunc
	running bool
	wg      sync.WaitGroup
}

// New constructs a Scheduler.
func New(cfg *config.Config, logger *slog.Logger, jobs Jobs) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "scheduler"),
		jobs:    jobs,
		now:     time.Now,
		entries: make(map[string]cron.EntryID),
		specs:   make(map[string]string),
	}
}

// Start registers jobs and arms the startup sync. A disabled sync config
// still registers the retention job.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	entries := make(map[string]cron.EntryID)
	specs := make(map[string]string)

	add := func(name, spec string, fn func(context.Context)) error {
		if _, err := ParseSchedule(spec); err != nil {
			return fmt.Errorf("%s job: %w", name, err)
		}
		id, err := c.AddFunc(spec, func() { fn(runCtx) })
		if err != nil {
			return fmt.Errorf("%s job: %w", name, err)
		}
		entries[name] = id
		specs[name] = spec
		return nil
	}

	if s.cfg.Sync.Enabled {
		if err := add("sync", s.cfg.Sync.Schedule, s.RunSync); err != nil {
			cancel()
			return err
		}
	}
	if err := add("gc", s.cfg.Sync.GCSchedule, s.RunGC); err != nil {
		cancel()
		return err
	}

	c.Start()
	s.cron = c
	s.entries = entries
	s.specs = specs
	s.cancel = cancel
	s.running = true

	if s.cfg.Sync.Enabled {
		delay := time.Duration(s.cfg.Sync.InitialDelaySeconds) * time.Second
		s.wg.Add(1)
		s.startup = time.AfterFunc(delay, func() {
			defer s.wg.Done()
			s.RunStartup(runCtx)
		})
	}

	s.logger.Info("scheduler started",
		logging.String(logging.FieldEventType, "scheduler_started"),
		logging.Bool("sync_enabled", s.cfg.Sync.Enabled),
		logging.String("sync_schedule", s.cfg.Sync.Schedule),
		logging.String("gc_schedule", s.cfg.Sync.GCSchedule),
		logging.Int("initial_delay_seconds", s.cfg.Sync.InitialDelaySeconds),
	)
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	if s.startup != nil && s.startup.Stop() {
		s.wg.Done()
	}
	s.startup = nil
	s.cancel()
	c := s.cron
	s.mu.Unlock()

	<-c.Stop().Done()
	s.wg.Wait()
	s.logger.Info("scheduler stopped", logging.String(logging.FieldEventType, "scheduler_stopped"))
}

// Entries lists the registered jobs with their next run time.
func (s *Scheduler) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil || !s.running {
		return nil
	}
	out := make([]Entry, 0, len(s.entries))
	for _, name := range []string{"sync", "gc"} {
		id, ok := s.entries[name]
		if !ok {
			continue
		}
		entry := s.cron.Entry(id)
		out = append(out, Entry{Name: name, Schedule: s.specs[name], Next: entry.Next, Prev: entry.Prev})
	}
	return out
}

// RunStartup reconciles the notes tree directly and queues waiting imports.
// It runs once after the initial delay so the record store is current before
// the first queued sync.
func (s *Scheduler) RunStartup(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	if s.jobs.Reconciler != nil {
		report, err := s.jobs.Reconciler.Reconcile(ctx)
		if err != nil {
			logging.WarnWithContext(s.logger, "startup sync failed", "startup_sync_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the notes directory and queue database"),
				logging.String(logging.FieldImpact, "records converge on the next scheduled sync"),
			)
		} else {
			s.logger.Info("startup sync complete",
				logging.String(logging.FieldEventType, "startup_sync_complete"),
				logging.Int("new", report.New),
				logging.Int("enqueued", report.Enqueued),
			)
		}
	} else if s.jobs.Sync != nil {
		s.enqueueSync(ctx)
	}
	s.scanImports(ctx)
}

// RunSync queues a full filesystem sync and scans the imports folder.
func (s *Scheduler) RunSync(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.enqueueSync(ctx)
	s.scanImports(ctx)
}

// RunGC purges completed tasks older than the retention window.
func (s *Scheduler) RunGC(ctx context.Context) {
	if ctx.Err() != nil || s.jobs.Purger == nil {
		return
	}
	cutoff := s.now().Add(-time.Duration(s.cfg.Sync.RetentionHours) * time.Hour)
	removed, err := s.jobs.Purger.PurgeCompletedBefore(ctx, cutoff)
	if err != nil {
		logging.WarnWithContext(s.logger, "task retention purge failed", "gc_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "completed tasks accumulate until the next run"),
		)
		return
	}
	if removed > 0 {
		s.logger.Info("completed tasks purged",
			logging.String(logging.FieldEventType, "gc_complete"),
			logging.Int64("removed", removed),
			logging.String("cutoff", cutoff.UTC().Format(time.RFC3339)),
		)
	}
}

func (s *Scheduler) enqueueSync(ctx context.Context) {
	if s.jobs.Sync == nil {
		return
	}
	created, err := s.jobs.Sync.EnqueueSync(ctx, true)
	if err != nil {
		logging.WarnWithContext(s.logger, "failed to queue sync", "sync_enqueue_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check queue database access"),
			logging.String(logging.FieldImpact, "sync retried on the next tick"),
		)
		return
	}
	s.logger.Debug("scheduled sync", logging.Bool("queued", created))
}

func (s *Scheduler) scanImports(ctx context.Context) {
	if s.jobs.Imports == nil {
		return
	}
	if _, err := s.jobs.Imports.ScanAndQueue(ctx); err != nil {
		logging.WarnWithContext(s.logger, "imports scan failed", "imports_scan_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the imports directory permissions"),
			logging.String(logging.FieldImpact, "pending imports wait for the next scan"),
		)
	}
}
