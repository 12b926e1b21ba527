package config

const (
	defaultNotesDir             = "~/voicenotes/notes"
	defaultImportsDir           = "~/voicenotes/imports"
	defaultStateDir             = "~/.local/share/voicenotes"
	defaultRootMarker           = "notes"
	defaultWhisperBinary        = "whisper-cli"
	defaultFFmpegBinary         = "ffmpeg"
	defaultModelPath            = "~/.local/share/voicenotes/models/ggml-base.en.bin"
	defaultModelName            = "base.en"
	defaultLanguage             = "en"
	defaultTranscribeTimeout    = 900
	defaultPollIntervalMillis   = 5000
	defaultPausedIntervalMillis = 1000
	defaultBusyIntervalMillis   = 2000
	defaultErrorRetryInterval   = 10
	defaultHeartbeatInterval    = 15
	defaultHeartbeatTimeout     = 120
	defaultWorkers              = 1
	defaultMaxRetries           = 2
	defaultInitialDelaySeconds  = 30
	defaultSyncSchedule         = "@every 5m"
	defaultGCSchedule           = "@every 1h"
	defaultRetentionHours       = 24
	defaultWatchDebounceMillis  = 1500
	defaultRequestTimeout       = 10
	defaultEventHistory         = 500
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

var (
	defaultAudioExtensions  = []string{".wav", ".mp3", ".m4a", ".ogg"}
	defaultImportExtensions = []string{".wav", ".mp3", ".m4a", ".ogg", ".flac", ".webm"}
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			NotesDir:   defaultNotesDir,
			ImportsDir: defaultImportsDir,
			StateDir:   defaultStateDir,
			RootMarker: defaultRootMarker,
		},
		Transcription: Transcription{
			WhisperBinary:  defaultWhisperBinary,
			FFmpegBinary:   defaultFFmpegBinary,
			ModelPath:      defaultModelPath,
			ModelName:      defaultModelName,
			Language:       defaultLanguage,
			TimeoutSeconds: defaultTranscribeTimeout,
		},
		Workflow: Workflow{
			PollIntervalMillis:   defaultPollIntervalMillis,
			PausedIntervalMillis: defaultPausedIntervalMillis,
			BusyIntervalMillis:   defaultBusyIntervalMillis,
			ErrorRetryInterval:   defaultErrorRetryInterval,
			HeartbeatInterval:    defaultHeartbeatInterval,
			HeartbeatTimeout:     defaultHeartbeatTimeout,
			Workers:              defaultWorkers,
			DefaultMaxRetries:    defaultMaxRetries,
		},
		Sync: Sync{
			Enabled:             true,
			InitialDelaySeconds: defaultInitialDelaySeconds,
			Schedule:            defaultSyncSchedule,
			GCSchedule:          defaultGCSchedule,
			RetentionHours:      defaultRetentionHours,
			Watch:               true,
			WatchDebounceMillis: defaultWatchDebounceMillis,
			AudioExtensions:     append([]string(nil), defaultAudioExtensions...),
			ImportExtensions:    append([]string(nil), defaultImportExtensions...),
		},
		Notifications: Notifications{
			RequestTimeout: defaultRequestTimeout,
			TaskCompleted:  true,
			TaskFailed:     true,
			SyncComplete:   false,
			Imports:        true,
			EventHistory:   defaultEventHistory,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
