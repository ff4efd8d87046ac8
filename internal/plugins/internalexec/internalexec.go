package internalexec

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
)

// Result captures the output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Command describes a process to run.
type Command struct {
	Name       string
	Args       []string
	Dir        string
	Env        []string
	Credential *syscall.Credential
	// Stdout and Stderr additionally receive the stream as it is produced.
	Stdout io.Writer
	Stderr io.Writer
}

// String renders the command line for logs and messages.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner executes commands. Back ends take a Runner so tests can script
// the host.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSRunner runs commands on the local host.
type OSRunner struct{}

// Run starts the command and waits for it, collecting its output. A non-zero
// exit is returned as an error alongside the populated Result.
func (OSRunner) Run(ctx context.Context, c Command) (Result, error) {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = c.Env
	}
	if c.Credential != nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{Credential: c.Credential}
	}
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	return RunStreaming(cmd)
}

// RunStreaming tees the command's stdout and stderr into buffers while still
// writing to any writers already attached to cmd.
func RunStreaming(cmd *exec.Cmd) (Result, error) {
	var stdoutBuf, stderrBuf bytes.Buffer

	if cmd.Stdout != nil {
		cmd.Stdout = io.MultiWriter(cmd.Stdout, &stdoutBuf)
	} else {
		cmd.Stdout = &stdoutBuf
	}
	if cmd.Stderr != nil {
		cmd.Stderr = io.MultiWriter(cmd.Stderr, &stderrBuf)
	} else {
		cmd.Stderr = &stderrBuf
	}

	err := cmd.Run()

	res := Result{
		Stdout: strings.TrimSpace(stdoutBuf.String()),
		Stderr: strings.TrimSpace(stderrBuf.String()),
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	}
	return res, err
}

// PrimaryOutput returns stderr if present, otherwise stdout.
func PrimaryOutput(res Result) string {
	if res.Stderr != "" {
		return res.Stderr
	}
	return res.Stdout
}

// Exited reports whether the command ran to completion, possibly with a
// non-zero status, as opposed to failing to start or being killed.
func Exited(res Result, err error) bool {
	return err == nil || res.ExitCode > 0
}

// ExitError is returned by Fake for scripted non-zero exits.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return "exit status " + strconv.Itoa(e.Code)
}

// Fake is a scripted Runner. Handler receives each command line as a single
// string and returns its result; a non-zero ExitCode becomes an *ExitError.
type Fake struct {
	Handler func(line string) Result

	mu    sync.Mutex
	calls []Command
}

// Run records the command and replies through Handler.
func (f *Fake) Run(ctx context.Context, c Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()

	var res Result
	if f.Handler != nil {
		res = f.Handler(c.String())
	}
	if res.ExitCode != 0 {
		return res, &ExitError{Code: res.ExitCode}
	}
	return res, nil
}

// Calls returns the command lines run so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		out = append(out, c.String())
	}
	return out
}

// Commands returns the full commands run so far.
func (f *Fake) Commands() []Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Command(nil), f.calls...)
}
