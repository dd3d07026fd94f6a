// Package executor runs metric executables as subprocesses.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/docker/go-units"

	"github.com/jandubois/rsvctl/internal/envdirective"
)

// maxOutput bounds the captured stdout and stderr of one run.
const maxOutput = 64 * 1024

// Invocation describes one execution of a metric.
type Invocation struct {
	Executable string
	Args       []string
	Env        map[string]envdirective.Directive
}

// Result is the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Executor runs invocations with a timeout and a path separator for
// APPEND/PREPEND environment directives.
type Executor struct {
	timeout       time.Duration
	pathSeparator string
}

// New creates a new Executor. A zero timeout disables the limit.
func New(timeout time.Duration, pathSeparator string) *Executor {
	return &Executor{
		timeout:       timeout,
		pathSeparator: pathSeparator,
	}
}

// Run executes the invocation. A non-zero exit status is reported in the
// Result, not as an error; errors mean the process could not run at all.
func (e *Executor) Run(ctx context.Context, inv Invocation) (*Result, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, inv.Executable, inv.Args...)
	cmd.Env = envdirective.Apply(os.Environ(), inv.Env, e.pathSeparator)
	// Ask politely first, kill after the grace period.
	cmd.Cancel = func() error { return cmd.Process.Signal(syscall.SIGTERM) }
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   truncate(stdout.String(), maxOutput),
		Stderr:   truncate(stderr.String(), maxOutput),
		Duration: duration,
	}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return result, fmt.Errorf("metric timed out after %s", e.timeout)
		}
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("run %s: %w", inv.Executable, err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	slog.Debug("metric executed",
		"executable", inv.Executable,
		"exit_code", result.ExitCode,
		"duration_ms", duration.Milliseconds(),
	)
	return result, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + fmt.Sprintf("... (truncated, %s total)", units.HumanSize(float64(len(s))))
}
