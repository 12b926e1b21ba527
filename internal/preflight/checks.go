package preflight

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sys/unix"

	"voicenotes/internal/config"
	"voicenotes/internal/deps"
)

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckSystemDeps evaluates the transcription toolchain for the given config.
// Both the daemon and the CLI status command use this list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	statuses := deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "Whisper",
			Command:     cfg.Transcription.WhisperBinary,
			Description: "Required for transcription",
		},
	})
	statuses = append(statuses,
		deps.ResolveFFmpeg(cfg.Transcription.FFmpegBinary, cfg.Transcription.WhisperBinary),
		deps.CheckModel(cfg.Transcription.ModelPath),
	)
	return statuses
}

// CheckNtfy verifies that the ntfy server behind a topic URL answers its
// health endpoint.
func CheckNtfy(ctx context.Context, topicURL string) Result {
	const name = "ntfy"

	server, err := ntfyServer(topicURL)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var health struct {
		Healthy bool `json:"healthy"`
	}
	resp, err := resty.New().
		SetTimeout(5*time.Second).
		R().
		SetContext(checkCtx).
		SetResult(&health).
		Get(server + "/v1/health")
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%v)", err)}
	}
	if resp.IsError() {
		return Result{Name: name, Detail: fmt.Sprintf("health check failed (%d)", resp.StatusCode())}
	}
	if !health.Healthy {
		return Result{Name: name, Detail: "server reports unhealthy"}
	}
	return Result{Name: name, Passed: true, Detail: server}
}

func ntfyServer(topicURL string) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(topicURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("invalid topic url %q", topicURL)
	}
	parsed.Path = path.Dir(strings.TrimRight(parsed.Path, "/"))
	if parsed.Path == "/" || parsed.Path == "." {
		parsed.Path = ""
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return parsed.String(), nil
}
