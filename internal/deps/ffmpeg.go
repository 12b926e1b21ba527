package deps

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

var ffmpegVersionArgs = []string{"-version"}

// ResolveFFmpeg reports the FFmpeg binary used to prepare audio for whisper.
//
// An explicitly configured path wins. A bare "ffmpeg" prefers a binary that
// sits next to the whisper executable, as bundled whisper.cpp releases ship
// one, and otherwise resolves from PATH.
func ResolveFFmpeg(configured, whisperCommand string) Status {
	result := Status{
		Name:        "FFmpeg",
		Description: "Converts recordings to 16 kHz mono WAV",
	}

	ffmpegName := strings.TrimSpace(configured)
	if ffmpegName == "" {
		ffmpegName = "ffmpeg"
	}

	if ffmpegName == "ffmpeg" {
		if whisper := strings.TrimSpace(whisperCommand); whisper != "" {
			if resolved, err := exec.LookPath(whisper); err == nil {
				candidate := siblingBinary(resolved, "ffmpeg")
				if info, statErr := os.Stat(candidate); statErr == nil && isExecutable(info) {
					result.Command = candidate
					result.Available = true
					result.Version = probeVersion(context.Background(), candidate, ffmpegVersionArgs)
					return result
				}
			}
		}
	}

	if ffmpegPath, err := exec.LookPath(ffmpegName); err == nil {
		result.Command = ffmpegPath
		result.Available = true
		result.Version = probeVersion(context.Background(), ffmpegPath, ffmpegVersionArgs)
		return result
	}

	result.Command = ffmpegName
	result.Detail = fmt.Sprintf("binary %q not found", ffmpegName)
	return result
}

// CheckModel verifies that the whisper model file exists and is non-empty.
func CheckModel(path string) Status {
	result := Status{
		Name:        "Whisper model",
		Command:     strings.TrimSpace(path),
		Description: "ggml model loaded by whisper",
	}
	if result.Command == "" {
		result.Detail = "model path not configured"
		return result
	}
	info, err := os.Stat(result.Command)
	switch {
	case err != nil:
		result.Detail = fmt.Sprintf("model %q not found", result.Command)
	case info.IsDir():
		result.Detail = fmt.Sprintf("model %q is a directory", result.Command)
	case info.Size() == 0:
		result.Detail = fmt.Sprintf("model %q is empty", result.Command)
	default:
		result.Available = true
	}
	return result
}

func siblingBinary(path, name string) string {
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(filepath.Dir(path), name)
}

func isExecutable(info os.FileInfo) bool {
	if info == nil || info.IsDir() {
		return false
	}
	if runtime.GOOS == "windows" {
		return true
	}
	return info.Mode().Perm()&0o111 != 0
}
