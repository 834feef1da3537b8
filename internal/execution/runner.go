package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"backup-orchestrator/internal/logging"
)

// ErrToolNotFound is returned when a required external tool is not on PATH
var ErrToolNotFound = errors.New("tool not found in PATH")

// CommandError describes a command that started but exited unsuccessfully
type CommandError struct {
	Tool     string
	ExitCode int
	Stderr   string
	Err      error
}

// Error returns a single-line description including the stderr tail
func (e *CommandError) Error() string {
	stderr := strings.TrimSpace(e.Stderr)
	if stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Tool, e.ExitCode, stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Tool, e.ExitCode)
}

// Unwrap returns the underlying exec error
func (e *CommandError) Unwrap() error {
	return e.Err
}

// RunnerConfig holds configuration for the command runner
type RunnerConfig struct {
	// DefaultTimeout applies to commands whose spec carries no timeout
	DefaultTimeout time.Duration
	// MaxCapturedOutput caps the bytes of stdout/stderr retained per stream.
	// When exceeded the head is discarded so error tails survive.
	MaxCapturedOutput int
}

// DefaultRunnerConfig returns the runner defaults
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		DefaultTimeout:    time.Hour,
		MaxCapturedOutput: 256 * 1024,
	}
}

// CommandSpec describes one external command invocation
type CommandSpec struct {
	Tool string
	Args []string
	// Env entries are appended to the parent environment. Secrets such as
	// PGPASSWORD travel here, never in Args.
	Env []string
	Dir string
	// Timeout overrides the runner default when positive
	Timeout time.Duration
	// Stdout redirects standard output when set, e.g. streaming a dump to
	// a file. Captured stdout stays empty in that case.
	Stdout io.Writer
	Stdin  io.Reader
}

// Result holds the observable outcome of a command
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
	TimedOut bool
}

// Runner executes external tools with timeouts, environment injection and
// bounded output capture. Cancelling the context kills the process.
type Runner struct {
	config RunnerConfig
	logger *logging.Logger
}

// NewRunner creates a new command runner
func NewRunner(config RunnerConfig, logger *logging.Logger) *Runner {
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = DefaultRunnerConfig().DefaultTimeout
	}
	if config.MaxCapturedOutput <= 0 {
		config.MaxCapturedOutput = DefaultRunnerConfig().MaxCapturedOutput
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &Runner{
		config: config,
		logger: logger,
	}
}

// LookTool resolves a tool name on PATH. Returns ErrToolNotFound when the
// binary is absent so callers can classify the failure.
func (r *Runner) LookTool(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}

// Run executes the command described by spec. The returned Result is
// populated even when err is non-nil so callers can inspect stderr.
//
// Error values: context.DeadlineExceeded after a timeout, context.Canceled
// after cancellation, ErrToolNotFound for a missing binary and *CommandError
// for a non-zero exit.
func (r *Runner) Run(ctx context.Context, spec CommandSpec) (*Result, error) {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.config.DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Tool, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdin = spec.Stdin
	// Do not wait forever on inherited pipes after the kill
	cmd.WaitDelay = 10 * time.Second

	stdout := newBoundedBuffer(r.config.MaxCapturedOutput)
	stderr := newBoundedBuffer(r.config.MaxCapturedOutput)
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	} else {
		cmd.Stdout = stdout
	}
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	err := r.classifyRunError(runCtx, ctx, spec.Tool, runErr, result)
	r.logger.LogToolExecution(spec.Tool, spec.Args, duration, err)
	return result, err
}

// RunToFile executes the command with stdout streamed into path. The file
// is synced before close so a crash cannot leave a silently short artifact.
func (r *Runner) RunToFile(ctx context.Context, spec CommandSpec, path string) (*Result, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
	}

	spec.Stdout = f
	result, runErr := r.Run(ctx, spec)

	if syncErr := f.Sync(); syncErr != nil && runErr == nil {
		runErr = fmt.Errorf("failed to sync output file %s: %w", path, syncErr)
	}
	if closeErr := f.Close(); closeErr != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output file %s: %w", path, closeErr)
	}
	return result, runErr
}

func (r *Runner) classifyRunError(runCtx, parentCtx context.Context, tool string, runErr error, result *Result) error {
	if runErr == nil {
		return nil
	}

	// Parent cancellation wins over the per-command deadline
	if parentCtx.Err() != nil {
		return parentCtx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		return fmt.Errorf("%s did not finish in time: %w", tool, context.DeadlineExceeded)
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return &CommandError{
			Tool:     tool,
			ExitCode: exitErr.ExitCode(),
			Stderr:   result.Stderr,
			Err:      runErr,
		}
	}

	if errors.Is(runErr, exec.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrToolNotFound, tool)
	}

	return fmt.Errorf("failed to run %s: %w", tool, runErr)
}

// boundedBuffer keeps at most max bytes, discarding the oldest ones. Command
// failures are usually explained by the last lines of stderr.
type boundedBuffer struct {
	max       int
	buf       []byte
	truncated bool
}

func newBoundedBuffer(max int) *boundedBuffer {
	return &boundedBuffer{max: max}
}

func (b *boundedBuffer) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
		b.truncated = true
	}
	return len(p), nil
}

func (b *boundedBuffer) String() string {
	if b.truncated {
		return "[...truncated...]" + string(b.buf)
	}
	return string(b.buf)
}
