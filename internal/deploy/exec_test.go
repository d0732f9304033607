package deploy

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestShellExecutor_RunsInDir(t *testing.T) {
	dir := t.TempDir()
	e := &ShellExecutor{Logger: zap.NewNop()}

	err := e.Execute(context.Background(), Command{App: "api", Step: "touch", Run: "echo built > marker", Dir: dir})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "marker"))
	require.NoError(t, err)
	assert.Equal(t, "built\n", string(data))
}

func TestShellExecutor_PassesEnv(t *testing.T) {
	e := &ShellExecutor{Logger: zap.NewNop()}

	err := e.Execute(context.Background(), Command{
		Run: `test "$DEPLOY_ENV" = production`,
		Dir: t.TempDir(),
		Env: []string{"DEPLOY_ENV=production"},
	})
	assert.NoError(t, err)
}

func TestShellExecutor_NonZeroExit(t *testing.T) {
	e := &ShellExecutor{Logger: zap.NewNop()}

	err := e.Execute(context.Background(), Command{Run: "echo 'missing target' >&2; exit 3", Dir: t.TempDir()})
	require.Error(t, err)

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.ExitCode())
	assert.Equal(t, "exit status 3: missing target", err.Error())
}

func TestShellExecutor_SpawnFailure(t *testing.T) {
	e := &ShellExecutor{Logger: zap.NewNop()}

	err := e.Execute(context.Background(), Command{Run: "true", Dir: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err)

	e = &ShellExecutor{Shell: filepath.Join(t.TempDir(), "no-such-shell"), Logger: zap.NewNop()}
	err = e.Execute(context.Background(), Command{Run: "true", Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestShellExecutor_Timeout(t *testing.T) {
	e := &ShellExecutor{Logger: zap.NewNop(), WaitDelay: time.Second}

	start := time.Now()
	err := e.Execute(context.Background(), Command{Run: "exec sleep 5", Dir: t.TempDir(), Timeout: 100 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShellExecutor_TimeoutKillsChildren(t *testing.T) {
	dir := t.TempDir()
	e := &ShellExecutor{Logger: zap.NewNop(), WaitDelay: time.Second}

	err := e.Execute(context.Background(), Command{
		Run:     "sh -c 'sleep 1; touch after-timeout'; true",
		Dir:     dir,
		Timeout: 100 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrTimeout)

	time.Sleep(1500 * time.Millisecond)
	assert.NoFileExists(t, filepath.Join(dir, "after-timeout"))
}

func TestShellExecutor_LogsOutput(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := &ShellExecutor{Logger: zap.New(core)}

	err := e.Execute(context.Background(), Command{
		App:  "api",
		Step: "greet",
		Run:  "echo hello; echo world; echo oops >&2; printf tail",
		Dir:  t.TempDir(),
	})
	require.NoError(t, err)

	stdout := logs.Filter(func(e observer.LoggedEntry) bool {
		return e.ContextMap()["out"] == "stdout"
	}).All()
	require.Len(t, stdout, 3)
	assert.Equal(t, "hello", stdout[0].Message)
	assert.Equal(t, "world", stdout[1].Message)
	assert.Equal(t, "tail", stdout[2].Message)
	assert.Equal(t, "api", stdout[0].ContextMap()["app"])
	assert.Equal(t, "greet", stdout[0].ContextMap()["step"])

	stderr := logs.Filter(func(e observer.LoggedEntry) bool {
		return e.ContextMap()["out"] == "stderr"
	}).All()
	require.Len(t, stderr, 1)
	assert.Equal(t, "oops", stderr[0].Message)
	assert.Equal(t, zapcore.WarnLevel, stderr[0].Level)
}

func TestZapWriter(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	w := NewZapWriter(zap.New(core), zapcore.InfoLevel, "stdout")

	_, _ = w.Write([]byte("par"))
	_, _ = w.Write([]byte("tial\r\nnext\n\n"))
	assert.Equal(t, 2, logs.Len())
	_, _ = w.Write([]byte("unterminated"))
	assert.Equal(t, 2, logs.Len())
	w.Flush()

	var lines []string
	for _, e := range logs.All() {
		lines = append(lines, e.Message)
	}
	assert.Equal(t, []string{"partial", "next", "unterminated"}, lines)
	assert.Equal(t, "unterminated", w.Last())
}

func TestAppGuard_FileLockExcludesOtherGuards(t *testing.T) {
	dir := t.TempDir()
	first := NewAppGuard(dir)
	second := &AppGuard{LockDir: dir, RetryDelay: 10 * time.Millisecond}

	release, err := first.Acquire(context.Background(), "api")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "api.lock"))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = second.Acquire(ctx, "api")
	assert.Error(t, err)

	release()

	release, err = second.Acquire(context.Background(), "api")
	require.NoError(t, err)
	release()
}
