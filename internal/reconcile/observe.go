package reconcile

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"voicenotes/internal/audioinfo"
	"voicenotes/internal/identity"
	"voicenotes/internal/logging"
	"voicenotes/internal/queue"
	"voicenotes/internal/transcribe"
)

// observation is what the disk says about one audio file.
type observation struct {
	id            string
	rel           string
	status        queue.RecordStatus
	text          string
	textPath      string
	size          int64
	duration      float64
	createdAt     time.Time
	transcribedAt *time.Time
	language      string
	model         string
	metadata      string
}

func (o observation) record() *queue.Record {
	return &queue.Record{
		ID:              o.id,
		AudioPath:       o.rel,
		TextPath:        o.textPath,
		Text:            o.text,
		CreatedAt:       o.createdAt,
		TranscribedAt:   o.transcribedAt,
		DurationSeconds: o.duration,
		FileSizeBytes:   o.size,
		Language:        o.language,
		Model:           o.model,
		Status:          o.status,
		MetadataJSON:    o.metadata,
	}
}

// observe reads one audio file and its companions. Once the audio file has
// been stat'ed and its id derived, errors come back with id and rel set so
// the caller still counts the file as present.
func (r *Reconciler) observe(abs string) (observation, error) {
	info, err := os.Stat(abs)
	if err != nil {
		return observation{}, err
	}
	rel := identity.StorePath(r.cfg.Paths.NotesDir, abs, r.cfg.Paths.RootMarker)
	ts := fileTime(info, rel, r.now())

	id, err := identity.DeriveIDWithFallback(path.Base(rel), path.Dir(rel), ts)
	switch {
	case errors.Is(err, identity.ErrNonCanonicalID):
		logging.WarnWithContext(r.logger, "audio file name does not follow the HHMMSS convention", "non_canonical_id",
			logging.String(logging.FieldTranscriptionID, id),
			logging.String("audio_path", rel),
			logging.String(logging.FieldImpact, "record is keyed by its file stem"),
		)
	case err != nil:
		return observation{}, fmt.Errorf("derive id: %w", err)
	}

	obs := observation{
		id:        id,
		rel:       rel,
		status:    queue.RecordPending,
		size:      info.Size(),
		createdAt: ts.UTC(),
	}

	sidecar, raw, sidecarErr := transcribe.ReadSidecar(abs)
	hasSidecar := sidecarErr == nil || !errors.Is(sidecarErr, os.ErrNotExist)
	if sidecarErr == nil {
		obs.metadata = string(raw)
		obs.language = sidecar.Language
		obs.model = sidecar.Model
		obs.duration = sidecar.DurationSeconds
		if !sidecar.TranscribedAt.IsZero() {
			at := sidecar.TranscribedAt.UTC()
			obs.transcribedAt = &at
		}
	}

	textAbs := identity.TextPath(abs)
	if data, err := os.ReadFile(textAbs); err == nil {
		if text := strings.TrimSpace(string(data)); text != "" {
			obs.status = queue.RecordComplete
			obs.text = text
			obs.textPath = identity.TextPath(rel)
			if obs.transcribedAt == nil {
				if textInfo, statErr := os.Stat(textAbs); statErr == nil {
					at := textInfo.ModTime().UTC()
					obs.transcribedAt = &at
				}
			}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return observation{id: id, rel: rel}, fmt.Errorf("read transcript: %w", err)
	}
	if obs.status != queue.RecordComplete {
		obs.transcribedAt = nil
		if hasSidecar {
			obs.status = queue.RecordOrphaned
		}
	}

	if obs.duration <= 0 {
		obs.duration = audioinfo.Duration(abs)
	}
	return obs, nil
}
