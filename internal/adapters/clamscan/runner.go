// Package clamscan runs the scanner executable as a child process.
package clamscan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/target/quarantine-scanner/internal/core"
)

// waitDelay bounds how long Run waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	Logger *slog.Logger
	// Env, when set, replaces the child's environment.
	Env []string
}

// Runner executes programs without a shell and captures merged stdout/stderr.
type Runner struct {
	logger *slog.Logger
	env    []string
}

var _ core.ProcessRunner = (*Runner)(nil)

// NewRunner constructs a Runner.
func NewRunner(opts RunnerOptions) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		logger: logger.With("component", "clamscan_runner"),
		env:    opts.Env,
	}
}

// Run executes req.Path with req.Args as the literal argument vector.
// A non-zero exit is reported through ProcessResult.ExitCode, not as an error.
func (r *Runner) Run(ctx context.Context, req core.ProcessRequest) (core.ProcessResult, error) {
	if req.Path == "" {
		return core.ProcessResult{}, errors.New("executable path is required")
	}

	// #nosec G204 -- the executable is operator-configured and arguments are passed without a shell
	cmd := exec.CommandContext(ctx, req.Path, req.Args...)
	cmd.WaitDelay = waitDelay
	if r.env != nil {
		cmd.Env = r.env
	}

	start := time.Now()
	output, err := cmd.CombinedOutput()
	elapsed := time.Since(start)

	if ctxErr := ctx.Err(); ctxErr != nil {
		return core.ProcessResult{Output: output}, fmt.Errorf("%s interrupted after %s: %w", req.Path, elapsed, ctxErr)
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return core.ProcessResult{}, fmt.Errorf("start %s: %w", req.Path, err)
		}
		r.logger.DebugContext(ctx, "process exited non-zero",
			"path", req.Path,
			"exit_code", exitErr.ExitCode(),
			"duration", elapsed,
		)
		return core.ProcessResult{Output: output, ExitCode: exitErr.ExitCode()}, nil
	}

	r.logger.DebugContext(ctx, "process exited", "path", req.Path, "duration", elapsed)
	return core.ProcessResult{Output: output}, nil
}
