package deploy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ErrTimeout is wrapped by step errors caused by an exceeded step timeout.
var ErrTimeout = errors.New("step timed out")

// Command is a single step ready to execute.
type Command struct {
	App     string
	Step    string
	Run     string
	Dir     string
	Env     []string
	Timeout time.Duration
}

// Executor runs one step to completion.
type Executor interface {
	Execute(ctx context.Context, cmd Command) error
}

// ShellExecutor runs steps through `<Shell> -c`, streaming their output to
// the logger.
type ShellExecutor struct {
	Shell  string
	Logger *zap.Logger
	// WaitDelay bounds how long output pipes are drained after the step
	// process is killed.
	WaitDelay time.Duration
}

func (e *ShellExecutor) Execute(ctx context.Context, command Command) (err error) {
	shell := e.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	logger := e.Logger
	if logger == nil {
		logger = zap.L()
	}

	if command.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, command.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command.Run)
	cmd.Dir = command.Dir
	cmd.Env = append(os.Environ(), command.Env...)
	killProcessGroup(cmd)
	cmd.WaitDelay = e.WaitDelay
	if cmd.WaitDelay == 0 {
		cmd.WaitDelay = 5 * time.Second
	}

	fields := []zap.Field{zap.String("app", command.App), zap.String("step", command.Step)}
	stdout := NewZapWriter(logger, zapcore.InfoLevel, "stdout", fields...)
	stderr := NewZapWriter(logger, zapcore.WarnLevel, "stderr", fields...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	logger.Debug("executing step", append(fields, zap.String("run", command.Run), zap.String("dir", command.Dir))...)
	err = cmd.Run()
	stdout.Flush()
	stderr.Flush()

	if err == nil {
		return
	}

	if command.Timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		err = fmt.Errorf("%w after %s", ErrTimeout, command.Timeout)
		return
	}

	if last := stderr.Last(); last != "" {
		err = fmt.Errorf("%w: %s", err, last)
	}
	return
}
