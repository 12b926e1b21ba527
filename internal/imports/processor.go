package imports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"voicenotes/internal/config"
	"voicenotes/internal/fileutil"
	"voicenotes/internal/identity"
	"voicenotes/internal/logging"
	"voicenotes/internal/notifications"
	"voicenotes/internal/queue"
	"voicenotes/internal/services"
	"voicenotes/internal/textutil"
)

// maxBumps limits how many later seconds are tried when a target id is taken.
const maxBumps = 120

// Result describes a processed import.
type Result struct {
	TranscriptionID string    `json:"transcription_id"`
	AudioPath       string    `json:"audio_path"`
	OriginalName    string    `json:"original_name"`
	OriginalPath    string    `json:"original_path"`
	ManifestPath    string    `json:"manifest_path"`
	TaskID          string    `json:"task_id,omitempty"`
	ProcessedAt     time.Time `json:"processed_at"`
}

// Processor files pending imports into the notes tree.
type Processor struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	notifier notifications.Service
	now      func() time.Time
}

// NewProcessor constructs a Processor. A nil notifier disables import events.
func NewProcessor(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Processor {
	if notifier == nil {
		notifier = notifications.Noop()
	}
	return &Processor{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "imports"),
		notifier: notifier,
		now:      time.Now,
	}
}

// SetClock overrides the time source used for target names.
func (p *Processor) SetClock(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Process moves one pending import into the notes tree and queues its
// transcription.
func (p *Processor) Process(ctx context.Context, payload queue.ProcessImport) (Result, error) {
	src, err := p.sourcePath(payload.ImportPath)
	if err != nil {
		return Result{}, err
	}
	info, err := os.Stat(src)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{}, services.Wrap(services.ErrValidation, "imports", "process", "import source vanished: "+payload.ImportPath, err)
		}
		return Result{}, fmt.Errorf("stat import: %w", err)
	}
	if info.IsDir() {
		return Result{}, services.Wrap(services.ErrValidation, "imports", "process", payload.ImportPath+" is a directory", nil)
	}

	originalName := filepath.Base(src)
	at := p.now()
	rel, id, err := p.reserveTarget(ctx, payload.TargetDir, originalName, at)
	if err != nil {
		return Result{}, err
	}
	dst := identity.AbsPath(p.cfg.Paths.NotesDir, rel)
	if err := fileutil.MoveFile(src, dst); err != nil {
		return Result{}, services.Wrap(services.ErrTransient, "imports", "move", originalName, err)
	}

	createdAt := at.UTC()
	if parsed, ok := identity.ParseID(id); ok {
		createdAt = parsed.UTC()
	}
	if _, err := p.store.InsertRecord(ctx, &queue.Record{
		ID:            id,
		AudioPath:     rel,
		Status:        queue.RecordPending,
		Source:        queue.SourceImport,
		FileSizeBytes: info.Size(),
		CreatedAt:     createdAt,
	}); err != nil {
		return Result{}, err
	}

	task := queue.NewTask(id, queue.TranscribeImported{AudioPath: rel, OriginalName: originalName}, queue.PriorityNormal, 2)
	created, err := p.store.EnqueueUnique(ctx, task)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		TranscriptionID: id,
		AudioPath:       rel,
		OriginalName:    originalName,
		OriginalPath:    src,
		ProcessedAt:     at.UTC(),
	}
	if created {
		result.TaskID = task.ID
	}
	manifest, err := p.writeManifest(result)
	if err != nil {
		logging.WarnWithContext(p.logger, "failed to write import manifest", "import_manifest_failed",
			logging.String("original_name", originalName),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check permissions on the processed imports folder"),
			logging.String(logging.FieldImpact, "import history is incomplete"),
		)
	}
	result.ManifestPath = manifest

	p.logger.Info("import processed",
		logging.String(logging.FieldEventType, "import_processed"),
		logging.String(logging.FieldTranscriptionID, id),
		logging.String("original_name", originalName),
		logging.String("audio_path", rel),
	)
	if err := p.notifier.Publish(ctx, notifications.EventImportProcessed, notifications.Payload{
		"transcription_id": id,
		"original_name":    originalName,
		"audio_path":       rel,
	}); err != nil {
		p.logger.Debug("import event publish failed", logging.Error(err))
	}
	return result, nil
}

func (p *Processor) sourcePath(importPath string) (string, error) {
	importPath = strings.TrimSpace(importPath)
	if importPath == "" {
		return "", services.Wrap(services.ErrValidation, "imports", "process", "payload has no import path", nil)
	}
	root := p.cfg.PendingImportsDir()
	src := importPath
	if !filepath.IsAbs(src) {
		src = filepath.Join(root, filepath.FromSlash(importPath))
	}
	rel, err := filepath.Rel(root, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", services.Wrap(services.ErrValidation, "imports", "process", importPath+" is outside the pending imports folder", nil)
	}
	return src, nil
}

// reserveTarget picks a store-relative destination whose id is unused,
// moving one second later on each collision.
func (p *Processor) reserveTarget(ctx context.Context, targetDir, originalName string, at time.Time) (string, string, error) {
	ext := strings.ToLower(filepath.Ext(originalName))
	stem := textutil.Slug(strings.TrimSuffix(originalName, filepath.Ext(originalName)))
	for range maxBumps {
		dir := strings.Trim(filepath.ToSlash(targetDir), "/")
		if dir == "" {
			dir = at.Format("2006") + "/" + at.Format("2006-01-02")
		}
		name := fmt.Sprintf("%s-imported-%s%s", at.Format("150405"), stem, ext)
		rel := path.Join(dir, name)
		id, err := identity.DeriveID(name, dir)
		if err != nil {
			return "", "", services.Wrap(services.ErrValidation, "imports", "target", "target directory "+dir+" has no date", err)
		}
		existing, err := p.store.GetRecord(ctx, id)
		if err != nil {
			return "", "", err
		}
		if existing == nil {
			if _, statErr := os.Stat(identity.AbsPath(p.cfg.Paths.NotesDir, rel)); errors.Is(statErr, os.ErrNotExist) {
				return rel, id, nil
			}
		}
		at = at.Add(time.Second)
	}
	return "", "", services.Wrap(services.ErrTransient, "imports", "target", "no free id near "+at.Format(time.RFC3339), nil)
}

type manifest struct {
	OriginalPath    string    `json:"original_path"`
	TargetPath      string    `json:"target_path"`
	TranscriptionID string    `json:"transcription_id"`
	ProcessedAt     time.Time `json:"processed_at"`
}

func (p *Processor) writeManifest(result Result) (string, error) {
	dir := p.cfg.ProcessedImportsDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(manifest{
		OriginalPath:    result.OriginalPath,
		TargetPath:      result.AudioPath,
		TranscriptionID: result.TranscriptionID,
		ProcessedAt:     result.ProcessedAt,
	}, "", "  ")
	if err != nil {
		return "", err
	}
	name := textutil.SafeFileName(result.OriginalName)
	target := filepath.Join(dir, name+".json")
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, fmt.Sprintf("%s.%s.json", name, result.ProcessedAt.Format("20060102T150405")))
	}
	if err := os.WriteFile(target, append(data, '\n'), 0o644); err != nil {
		return "", err
	}
	return target, nil
}
