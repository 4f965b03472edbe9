package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// ErrEncodeFailed wraps encoder invocation failures. The wrapped message
// carries the tool's own diagnostic text so the scheduler can surface it.
var ErrEncodeFailed = errors.New("encoder invocation failed")

// Runner executes an external tool to completion. It exists so tests can
// substitute a fake for the real ffmpeg binary.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) error

	// KillAll terminates every live process the runner spawned.
	KillAll()
}

// execRunner spawns real processes and tracks every live one so a
// cancelled or timed-out job never leaves an encoder running. The process
// is killed on context cancellation and its exit awaited before Run
// returns, which is what frees the caller's worker slot.
type execRunner struct {
	logger hclog.Logger

	mu        sync.Mutex
	processes map[string]*exec.Cmd // keyed by output target
}

// NewRunner creates the production process runner.
func NewRunner(logger hclog.Logger) Runner {
	return &execRunner{
		logger:    logger.Named("runner"),
		processes: make(map[string]*exec.Cmd),
	}
}

func (r *execRunner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	// The output target is the last argument by convention; good enough
	// as a registry key since two renditions never share an output path.
	key := name
	if len(args) > 0 {
		key = args[len(args)-1]
	}

	r.mu.Lock()
	r.processes[key] = cmd
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.processes, key)
		r.mu.Unlock()
	}()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: failed to start %s: %v", ErrEncodeFailed, name, err)
	}

	err := cmd.Wait()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", ErrEncodeFailed, diagnosticText(&stderr, err))
	}
	return nil
}

// KillAll terminates every tracked process. Called during shutdown as the
// backstop for encoders that outlive their cancelled job contexts.
func (r *execRunner) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, cmd := range r.processes {
		if cmd.Process != nil {
			r.logger.Info("killing encoder process", "target", key, "pid", cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				r.logger.Warn("failed to kill encoder process", "target", key, "error", err)
			}
		}
	}
}

// diagnosticText prefers the tool's stderr tail over the bare exit error.
func diagnosticText(stderr *bytes.Buffer, err error) string {
	text := strings.TrimSpace(stderr.String())
	if text == "" {
		return err.Error()
	}
	lines := strings.Split(text, "\n")
	if len(lines) > 5 {
		lines = lines[len(lines)-5:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
