package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"voicenotes/internal/config"
	"voicenotes/internal/ipc"
)

const pollEvery = 200 * time.Millisecond

// ErrDaemonNotRunning is returned by Stop when nothing answers on the socket
// and no process holds the daemon lock.
var ErrDaemonNotRunning = errors.New("daemon not running")

// LaunchOptions are forwarded to `voicenotes daemon run`.
type LaunchOptions struct {
	ConfigPath string
	Verbose    bool
}

func (o LaunchOptions) args() []string {
	args := []string{"daemon", "run"}
	if path := strings.TrimSpace(o.ConfigPath); path != "" {
		args = append(args, "--config", path)
	}
	if o.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

// Controller starts, stops and inspects the background daemon.
type Controller struct {
	Socket     string
	PIDPath    string
	LockPath   string
	Executable string
	Launch     LaunchOptions
}

// NewController targets the daemon described by cfg.
func NewController(cfg *config.Config, executable string, launch LaunchOptions) *Controller {
	return &Controller{
		Socket:     cfg.SocketPath(),
		PIDPath:    cfg.PIDPath(),
		LockPath:   cfg.LockPath(),
		Executable: executable,
		Launch:     launch,
	}
}

// Probe describes what is known about a daemon without changing it.
type Probe struct {
	Answering bool
	LockHeld  bool
	PID       int
}

// Running reports whether any daemon instance appears to be alive.
func (p Probe) Running() bool { return p.Answering || p.LockHeld }

// Probe asks the daemon for its pid over IPC and checks the instance lock.
func (c *Controller) Probe() (Probe, error) {
	var p Probe
	client, err := ipc.Dial(c.Socket)
	switch {
	case err == nil:
		defer client.Close()
		p.Answering = true
		if status, err := client.Status(); err == nil {
			p.PID = status.PID
		}
	case !isDaemonUnavailable(err):
		return p, err
	}
	p.LockHeld = lockHeld(c.LockPath)
	if p.PID == 0 && p.LockHeld {
		p.PID, _ = readPID(c.PIDPath)
	}
	return p, nil
}

// StartResult reports whether Start launched a process.
type StartResult struct {
	AlreadyRunning bool
	PID            int
}

// Start launches a detached daemon unless one already answers, then waits
// up to wait for its socket.
func (c *Controller) Start(ctx context.Context, wait time.Duration) (StartResult, error) {
	if p, err := c.Probe(); err == nil && p.Answering {
		return StartResult{AlreadyRunning: true, PID: p.PID}, nil
	}
	if strings.TrimSpace(c.Executable) == "" {
		return StartResult{}, errors.New("resolve executable: executable path is empty")
	}

	proc := exec.Command(c.Executable, c.Launch.args()...)
	proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := proc.Start(); err != nil {
		return StartResult{}, fmt.Errorf("launch daemon: %w", err)
	}
	pid := proc.Process.Pid
	if err := proc.Process.Release(); err != nil {
		return StartResult{}, fmt.Errorf("release daemon process: %w", err)
	}

	if err := waitUntil(ctx, wait, c.answering); err != nil {
		return StartResult{}, fmt.Errorf("daemon failed to start: %w", err)
	}
	if p, err := c.Probe(); err == nil && p.PID > 0 {
		pid = p.PID
	}
	return StartResult{PID: pid}, nil
}

// StopResult reports how the daemon went away.
type StopResult struct {
	Acknowledged bool
	Killed       bool
	PID          int
}

// Stop asks the daemon to exit and kills it when it is still alive after
// grace.
func (c *Controller) Stop(ctx context.Context, grace time.Duration) (StopResult, error) {
	probe, err := c.Probe()
	if err != nil {
		return StopResult{}, err
	}
	if !probe.Running() {
		return StopResult{}, ErrDaemonNotRunning
	}
	result := StopResult{PID: probe.PID}

	if probe.Answering {
		client, err := ipc.Dial(c.Socket)
		if err == nil {
			resp, stopErr := client.Stop()
			_ = client.Close()
			if stopErr != nil {
				return result, stopErr
			}
			result.Acknowledged = resp.Stopped
		}
		gone := func() bool { return !c.answering() && !lockHeld(c.LockPath) }
		if waitUntil(ctx, grace, gone) == nil {
			return result, nil
		}
	}

	pid, err := c.kill(result.PID)
	if err != nil {
		return result, fmt.Errorf("failed to stop daemon process: %w", err)
	}
	_ = os.Remove(c.Socket)
	result.Killed = true
	result.PID = pid
	return result, nil
}

// RestartResult combines the stop and start halves of Restart.
type RestartResult struct {
	WasRunning bool
	Stop       StopResult
	Start      StartResult
}

// Restart stops any running daemon and launches a fresh one.
func (c *Controller) Restart(ctx context.Context, grace, wait time.Duration) (RestartResult, error) {
	stopped, err := c.Stop(ctx, grace)
	if err != nil && !errors.Is(err, ErrDaemonNotRunning) {
		return RestartResult{}, err
	}
	started, startErr := c.Start(ctx, wait)
	if startErr != nil {
		return RestartResult{}, startErr
	}
	return RestartResult{WasRunning: err == nil, Stop: stopped, Start: started}, nil
}

func (c *Controller) answering() bool {
	client, err := ipc.Dial(c.Socket)
	if err != nil {
		return false
	}
	_ = client.Close()
	return true
}

// waitUntil polls cond until it holds or timeout elapses.
func waitUntil(ctx context.Context, timeout time.Duration, cond func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(pollEvery)
	defer ticker.Stop()
	for {
		if cond() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up after %s: %w", timeout, ctx.Err())
		case <-ticker.C:
		}
	}
}

// kill sends SIGKILL to the pid in the pid file, or fallback when the file
// is absent, and removes the pid and lock files.
func (c *Controller) kill(fallback int) (int, error) {
	pid, err := readPID(c.PIDPath)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, err
	}
	if pid <= 0 {
		pid = fallback
	}
	if pid <= 0 {
		return 0, fmt.Errorf("unable to determine daemon pid (pid file: %s)", c.PIDPath)
	}
	if pid == os.Getpid() {
		return 0, fmt.Errorf("refusing to kill current process (pid %d)", pid)
	}
	if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return 0, fmt.Errorf("kill daemon process %d: %w", pid, err)
	}
	if err := os.Remove(c.PIDPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("remove pid file %q: %w", c.PIDPath, err)
	}
	if c.LockPath != "" {
		_ = os.Remove(c.LockPath)
	}
	return pid, nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, err
		}
		return 0, fmt.Errorf("read daemon pid file %q: %w", path, err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, nil
	}
	return pid, nil
}

// lockHeld reports whether another process holds the daemon's instance lock.
func lockHeld(path string) bool {
	if strings.TrimSpace(path) == "" {
		return false
	}
	if _, err := os.Stat(path); err != nil {
		return false
	}
	lock := flock.New(path)
	ok, err := lock.TryLock()
	if err != nil {
		return false
	}
	if ok {
		_ = lock.Unlock()
		return false
	}
	return true
}

func isDaemonUnavailable(err error) bool {
	return errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED)
}
