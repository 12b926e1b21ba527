package deps

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// versionProbeTimeout caps how long a --version style probe may run.
const versionProbeTimeout = 3 * time.Second

// Requirement names an external program and how to recognise it.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the resolved binary and the first
	// line of output is reported as its version.
	VersionArgs []string
}

// Status is the outcome of checking one Requirement.
type Status struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	Available   bool
	Version     string
	Detail      string
}

func (r Requirement) status() Status {
	return Status{
		Name:        r.Name,
		Command:     strings.TrimSpace(r.Command),
		Description: strings.TrimSpace(r.Description),
		Optional:    r.Optional,
	}
}

// Check resolves a single requirement on PATH and probes its version.
func (r Requirement) Check(ctx context.Context) Status {
	st := r.status()
	if st.Command == "" {
		st.Detail = "command not configured"
		return st
	}
	resolved, err := exec.LookPath(st.Command)
	if err != nil {
		st.Detail = fmt.Sprintf("binary %q not found", st.Command)
		return st
	}
	st.Available = true
	if len(r.VersionArgs) > 0 {
		st.Version = probeVersion(ctx, resolved, r.VersionArgs)
	}
	return st
}

// CheckBinaries checks every requirement in order.
func CheckBinaries(requirements []Requirement) []Status {
	ctx := context.Background()
	out := make([]Status, len(requirements))
	for i, req := range requirements {
		out[i] = req.Check(ctx)
	}
	return out
}

// probeVersion returns the first non-empty output line, or "" when the
// binary fails or says nothing.
func probeVersion(ctx context.Context, binary string, args []string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, binary, args...).CombinedOutput()
	if err != nil && len(output) == 0 {
		return ""
	}
	sc := bufio.NewScanner(bytes.NewReader(output))
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			return line
		}
	}
	return ""
}
