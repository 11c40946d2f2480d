// Copyright (c) 2025 A Bit of Help, Inc.

// Package command runs external programs with context awareness.
//
// This package serves as the foundation for the core tool adapters in /pkg
// (metadata, transcode), which are in turn driven by the stage packages in /pkg/pipeline.
package command

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	customErrors "github.com/abitofhelp/mp3toogg/pkg/errors"
	"go.uber.org/zap"
)

// KillGracePeriod bounds how long Run keeps reading a killed tool's output. Helpers the
// tool started may still hold the pipe open.
const KillGracePeriod = 2 * time.Second

// Runner executes a program and returns its combined stdout and stderr.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// RunnerFunc adapts a function to the Runner interface.
type RunnerFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return f(ctx, name, args...)
}

// ExecRunner runs programs with os/exec. A zero Timeout lets a tool run until it exits
// or the caller's context ends. Each tool runs in its own process group, and the whole
// group is killed when the run is stopped. Logger is optional.
type ExecRunner struct {
	Timeout time.Duration
	Logger  *zap.Logger
}

// Run executes name with args and captures everything it prints.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// Check if context is already canceled
	if err := ctx.Err(); err != nil {
		return nil, contextError(err, name)
	}

	runCtx := ctx
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	if r.Logger != nil {
		r.Logger.Debug("Running tool", zap.String("command", Describe(name, args...)))
	}

	cmd := exec.CommandContext(runCtx, name, args...)
	killProcessGroup(cmd)
	cmd.WaitDelay = KillGracePeriod
	output, err := cmd.CombinedOutput()
	if err == nil {
		return output, nil
	}

	// A parent cancellation wins over the per-tool timeout
	if ctxErr := ctx.Err(); ctxErr != nil {
		return output, contextError(ctxErr, name)
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return output, fmt.Errorf("%w: %s did not finish within %s", customErrors.ErrTimeout, name, r.Timeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, fmt.Errorf("%s exited with status %d: %w", name, exitErr.ExitCode(), err)
	}
	return output, fmt.Errorf("run %s: %w", name, err)
}

func contextError(err error, name string) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", customErrors.ErrTimeout, name, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %s: %w", customErrors.ErrCanceled, name, err)
	}
	return fmt.Errorf("context error running %s: %w", name, err)
}

// Describe renders a command line for logs, quoting arguments that need it.
func Describe(name string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	for _, part := range append([]string{name}, args...) {
		if part == "" || strings.ContainsAny(part, " \t\"'") {
			part = strconv.Quote(part)
		}
		parts = append(parts, part)
	}
	return strings.Join(parts, " ")
}

// Tail returns at most the last n lines of output, for compact diagnostics.
func Tail(output []byte, n int) string {
	lines := strings.Split(strings.TrimRight(string(output), "\r\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
