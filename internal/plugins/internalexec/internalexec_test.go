package internalexec

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("POSIX shell assumptions do not hold on Windows")
	}
}

func TestRunStreaming_Success(t *testing.T) {
	skipWindows(t)

	result, err := RunStreaming(exec.Command("echo", "hello world"))
	require.NoError(t, err)
	assert.Equal(t, "hello world", result.Stdout)
	assert.Equal(t, "", result.Stderr)
	assert.Zero(t, result.ExitCode)
}

func TestRunStreaming_WithError(t *testing.T) {
	skipWindows(t)

	result, err := RunStreaming(exec.Command("sh", "-c", "echo 'error message' >&2; exit 3"))
	require.Error(t, err)
	assert.Equal(t, "error message", result.Stderr)
	assert.Equal(t, 3, result.ExitCode)
	assert.Equal(t, "error message", PrimaryOutput(result))
}

func TestRunStreaming_TeesAttachedWriters(t *testing.T) {
	skipWindows(t)

	var stdoutBuf bytes.Buffer
	cmd := exec.Command("echo", "piped output")
	cmd.Stdout = &stdoutBuf

	result, err := RunStreaming(cmd)
	require.NoError(t, err)
	assert.Equal(t, "piped output", result.Stdout)
	assert.Equal(t, "piped output\n", stdoutBuf.String())
}

func TestOSRunner_DirAndEnv(t *testing.T) {
	skipWindows(t)

	dir := t.TempDir()
	res, err := OSRunner{}.Run(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "pwd; echo $GREETING"},
		Dir:  dir,
		Env:  []string{"GREETING=hi"},
	})
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, "hi")
}

func TestOSRunner_ContextTimeout(t *testing.T) {
	skipWindows(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := OSRunner{}.Run(ctx, Command{Name: "sleep", Args: []string{"5"}})
	require.Error(t, err)
	require.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
}

func TestPrimaryOutputFallsBackToStdout(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "out", PrimaryOutput(Result{Stdout: "out"}))
}

func TestFakeRunner(t *testing.T) {
	t.Parallel()

	fake := &Fake{Handler: func(line string) Result {
		if line == "systemctl is-active nfs" {
			return Result{Stdout: "inactive", ExitCode: 3}
		}
		return Result{}
	}}

	res, err := fake.Run(context.Background(), Command{Name: "systemctl", Args: []string{"is-active", "nfs"}})
	var exitErr *ExitError
	require.ErrorAs(t, err, &exitErr)
	require.Equal(t, 3, exitErr.Code)
	require.Equal(t, "inactive", res.Stdout)
	require.Equal(t, "exit status 3", err.Error())

	_, err = fake.Run(context.Background(), Command{Name: "systemctl", Args: []string{"start", "nfs"}})
	require.NoError(t, err)
	require.Equal(t, []string{"systemctl is-active nfs", "systemctl start nfs"}, fake.Calls())
	require.Len(t, fake.Commands(), 2)
}
