package workflow

import (
	"context"
	"log/slog"

	"voicenotes/internal/logging"
	"voicenotes/internal/preflight"
)

// runPreflightChecks logs the readiness of directories, the transcription
// toolchain, and notifications. Failures are reported but do not block
// startup; affected tasks fail and retry on their own.
func (m *Manager) runPreflightChecks(ctx context.Context, logger *slog.Logger) int {
	failed := 0
	for _, r := range preflight.RunAll(ctx, m.cfg) {
		if r.Passed {
			logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		failed++
		logging.WarnWithContext(logger, "preflight check failed", "preflight_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "fix the reported issue and restart the daemon"),
			logging.String(logging.FieldImpact, "tasks depending on this check will fail and retry"),
		)
	}
	return failed
}
