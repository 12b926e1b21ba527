package imports

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"voicenotes/internal/config"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
)

// maxDepth bounds how far below the pending folder files are picked up.
const maxDepth = 2

// Scanner queues pending imports.
type Scanner struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	exts   map[string]struct{}
}

// NewScanner constructs a Scanner.
func NewScanner(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Scanner {
	exts := make(map[string]struct{}, len(cfg.Sync.ImportExtensions))
	for _, ext := range cfg.Sync.ImportExtensions {
		exts[strings.ToLower(ext)] = struct{}{}
	}
	return &Scanner{
		cfg:    cfg,
		store:  store,
		logger: logging.NewComponentLogger(logger, "imports"),
		exts:   exts,
	}
}

// Accepts reports whether path has an importable extension.
func (s *Scanner) Accepts(path string) bool {
	_, ok := s.exts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Scan lists importable files in the pending folder, creating it when absent.
func (s *Scanner) Scan(ctx context.Context) ([]string, error) {
	root := s.cfg.PendingImportsDir()
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create pending imports dir: %w", err)
	}
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		depth := strings.Count(rel, string(filepath.Separator)) + 1
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") || depth >= maxDepth {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") || !d.Type().IsRegular() || !s.Accepts(path) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan imports: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

// ScanAndQueue queues a process_import task for every pending file that
// does not already have one. It returns the number of tasks created.
func (s *Scanner) ScanAndQueue(ctx context.Context) (int, error) {
	files, err := s.Scan(ctx)
	if err != nil {
		return 0, err
	}
	queued := 0
	for _, path := range files {
		created, err := s.Queue(ctx, path)
		if err != nil {
			logging.WarnWithContext(s.logger, "failed to queue import", "import_queue_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check queue database access"),
				logging.String(logging.FieldImpact, "file stays in the pending folder until the next scan"),
			)
			continue
		}
		if created {
			queued++
		}
	}
	if queued > 0 {
		s.logger.Info("imports queued",
			logging.Int("count", queued),
			logging.Int("pending_files", len(files)),
			logging.String(logging.FieldEventType, "imports_queued"),
		)
	}
	return queued, nil
}

// Queue creates a process_import task for one pending file unless an
// unresolved task for the same file exists.
func (s *Scanner) Queue(ctx context.Context, path string) (bool, error) {
	rel, err := filepath.Rel(s.cfg.PendingImportsDir(), path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return false, fmt.Errorf("%s is not inside the pending imports folder", path)
	}
	rel = filepath.ToSlash(rel)
	task := queue.NewTask(queue.ImportTaskKey(rel), queue.ProcessImport{ImportPath: rel}, queue.PriorityNormal, s.cfg.Workflow.DefaultMaxRetries)
	return s.store.EnqueueUnique(ctx, task)
}
