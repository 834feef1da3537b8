package execution

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backup-orchestrator/internal/logging"
)

func newTestRunner(t *testing.T) *Runner {
	t.Helper()
	logger, err := logging.NewLogger(logging.Config{Level: logging.LogLevelQuiet})
	require.NoError(t, err)
	return NewRunner(DefaultRunnerConfig(), logger)
}

func TestNewRunner_AppliesDefaults(t *testing.T) {
	runner := NewRunner(RunnerConfig{}, nil)

	assert.Equal(t, time.Hour, runner.config.DefaultTimeout)
	assert.Equal(t, 256*1024, runner.config.MaxCapturedOutput)
	assert.NotNil(t, runner.logger)
}

func TestRunner_Run_Success(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), CommandSpec{
		Tool: "sh",
		Args: []string{"-c", "echo hello"},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, 0, result.ExitCode)
	assert.False(t, result.TimedOut)
	assert.Greater(t, result.Duration, time.Duration(0))
}

func TestRunner_Run_NonZeroExit(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), CommandSpec{
		Tool: "sh",
		Args: []string{"-c", "echo oops >&2; exit 3"},
	})

	require.Error(t, err)

	var cmdErr *CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.Equal(t, "sh", cmdErr.Tool)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Stderr, "oops")
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Stderr, "oops")
}

func TestRunner_Run_Timeout(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), CommandSpec{
		Tool:    "sleep",
		Args:    []string{"10"},
		Timeout: 50 * time.Millisecond,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, result.TimedOut)
}

func TestRunner_Run_ParentCancellation(t *testing.T) {
	runner := newTestRunner(t)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	_, err := runner.Run(ctx, CommandSpec{
		Tool: "sleep",
		Args: []string{"10"},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRunner_Run_ToolNotFound(t *testing.T) {
	runner := newTestRunner(t)

	_, err := runner.Run(context.Background(), CommandSpec{
		Tool: "definitely-not-a-real-tool-1b2c3d",
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrToolNotFound))
}

func TestRunner_Run_EnvInjection(t *testing.T) {
	runner := newTestRunner(t)

	result, err := runner.Run(context.Background(), CommandSpec{
		Tool: "sh",
		Args: []string{"-c", `printf "%s" "$INJECTED_SECRET"`},
		Env:  []string{"INJECTED_SECRET=s3cret-value"},
	})

	require.NoError(t, err)
	assert.Equal(t, "s3cret-value", result.Stdout)
}

func TestRunner_RunToFile(t *testing.T) {
	runner := newTestRunner(t)
	path := filepath.Join(t.TempDir(), "out.txt")

	result, err := runner.RunToFile(context.Background(), CommandSpec{
		Tool: "sh",
		Args: []string{"-c", "echo streamed"},
	}, path)

	require.NoError(t, err)
	// Captured stdout stays empty when redirected to a file
	assert.Empty(t, result.Stdout)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "streamed\n", string(data))
}

func TestRunner_LookTool(t *testing.T) {
	runner := newTestRunner(t)

	tests := []struct {
		name    string
		tool    string
		wantErr bool
	}{
		{
			name:    "existing tool",
			tool:    "sh",
			wantErr: false,
		},
		{
			name:    "missing tool",
			tool:    "definitely-not-a-real-tool-1b2c3d",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path, err := runner.LookTool(tt.tool)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrToolNotFound))
			} else {
				require.NoError(t, err)
				assert.NotEmpty(t, path)
			}
		})
	}
}

func TestBoundedBuffer_KeepsTail(t *testing.T) {
	buf := newBoundedBuffer(10)

	_, err := buf.Write([]byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "0123456789", buf.String())

	_, err = buf.Write([]byte("abcdef"))
	require.NoError(t, err)

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "[...truncated...]"))
	assert.True(t, strings.HasSuffix(out, "abcdef"))
	assert.Len(t, strings.TrimPrefix(out, "[...truncated...]"), 10)
}

func TestCommandError_Error(t *testing.T) {
	err := &CommandError{Tool: "pg_dump", ExitCode: 1, Stderr: "connection refused\n"}
	assert.Equal(t, "pg_dump exited with code 1: connection refused", err.Error())

	err = &CommandError{Tool: "pg_dump", ExitCode: 2}
	assert.Equal(t, "pg_dump exited with code 2", err.Error())
}
