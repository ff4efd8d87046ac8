package commandplugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/internalexec"
	"github.com/datashades/converge/internal/resource"
)

// DefaultTimeout bounds a single shell step when no timeout is configured.
const DefaultTimeout = 30 * time.Minute

// Options configure the shell back end.
type Options struct {
	// Shell overrides the interpreter; bash, then sh, by default.
	Shell   string
	Timeout time.Duration
	// Output receives the live stdout and stderr of every command.
	Output io.Writer
}

type commandPlugin struct {
	runner internalexec.Runner
	opts   Options
}

// New creates the shell back end.
func New(runner internalexec.Runner, opts Options) plugin.Plugin {
	if runner == nil {
		runner = internalexec.OSRunner{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &commandPlugin{runner: runner, opts: opts}
}

var _ plugin.Plugin = (*commandPlugin)(nil)

func (p *commandPlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "shell",
		Kind:        resource.KindShell,
		Description: "Runs shell commands. Idempotence comes from the step's guard.",
	}
}

// Evaluate always reports work to do: a command's effect cannot be observed
// beforehand.
func (p *commandPlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}
	if len(spec.Subscribes) > 0 && !anyChanged(ctx, spec.Subscribes) {
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      fmt.Sprintf("%s unchanged", strings.Join(spec.Subscribes, ", ")),
		}, nil
	}
	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusUnknown,
		RequiresAction: true,
		Message:        "command will run",
		Diff:           fmt.Sprintf("Would run: %s", spec.Command),
	}, nil
}

func (p *commandPlugin) Apply(ctx context.Context, _ *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	cmd, err := p.buildCommand(spec)
	if err != nil {
		return nil, plugin.NewValidationError(desc.Identity, err)
	}

	runCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	defer cancel()

	res, err := p.runner.Run(runCtx, cmd)
	if err != nil {
		if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("timed out after %s", p.opts.Timeout)
		} else if out := internalexec.PrimaryOutput(res); out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("command failed: %v", err),
			Error:   err,
		}, plugin.NewExecutionError(desc.Identity, err)
	}

	msg := lastLine(res.Stdout)
	if msg == "" {
		msg = "command completed"
	}
	return &model.StepResult{StepID: desc.Identity, Status: model.StatusApplied, Message: msg}, nil
}

func (p *commandPlugin) buildCommand(spec *resource.ShellSpec) (internalexec.Command, error) {
	shell, args, err := determineShell(p.opts.Shell)
	if err != nil {
		return internalexec.Command{}, err
	}

	cmd := internalexec.Command{
		Name:   shell,
		Args:   append(args, spec.Command),
		Dir:    spec.WorkDir,
		Stdout: p.opts.Output,
		Stderr: p.opts.Output,
	}

	extra := map[string]string{}
	if spec.User != "" || spec.Group != "" {
		cred, home, err := credentialFor(spec.User, spec.Group)
		if err != nil {
			return internalexec.Command{}, err
		}
		cmd.Credential = cred
		if spec.User != "" {
			extra["HOME"] = home
			extra["USER"] = spec.User
			extra["LOGNAME"] = spec.User
		}
	}
	for k, v := range spec.Env {
		extra[k] = v
	}
	cmd.Env = buildEnv(extra)
	return cmd, nil
}

func determineShell(explicit string) (string, []string, error) {
	if explicit != "" {
		return explicit, []string{"-c"}, nil
	}

	if runtime.GOOS == "windows" {
		return "cmd", []string{"/C"}, nil
	}

	if path, err := exec.LookPath("bash"); err == nil {
		return path, []string{"-c"}, nil
	}

	if path, err := exec.LookPath("sh"); err == nil {
		return path, []string{"-c"}, nil
	}

	return "", nil, fmt.Errorf("no suitable shell found")
}

// buildEnv overlays custom on the process environment in a stable order.
func buildEnv(custom map[string]string) []string {
	env := os.Environ()
	keys := make([]string, 0, len(custom))
	for k := range custom {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, custom[k]))
	}
	return env
}

// credentialFor resolves the identity a command runs as. A user without a
// group runs with that user's primary group.
func credentialFor(username, group string) (*syscall.Credential, string, error) {
	cred := &syscall.Credential{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())}
	home := ""

	if username != "" {
		u, err := user.Lookup(username)
		if err != nil {
			return nil, "", fmt.Errorf("lookup user %s: %w", username, err)
		}
		uid, _ := strconv.ParseUint(u.Uid, 10, 32)
		gid, _ := strconv.ParseUint(u.Gid, 10, 32)
		cred.Uid, cred.Gid = uint32(uid), uint32(gid)
		home = u.HomeDir
	}
	if group != "" {
		g, err := user.LookupGroup(group)
		if err != nil {
			return nil, "", fmt.Errorf("lookup group %s: %w", group, err)
		}
		gid, _ := strconv.ParseUint(g.Gid, 10, 32)
		cred.Gid = uint32(gid)
	}
	cred.NoSetGroups = uint32(os.Getuid()) == cred.Uid
	return cred, home, nil
}

func anyChanged(ctx context.Context, identities []string) bool {
	state, ok := plugin.RunStateFrom(ctx)
	if !ok {
		return false
	}
	for _, id := range identities {
		if state.Changed(id) {
			return true
		}
	}
	return false
}

// lastLine returns the last non-blank line of out.
func lastLine(out string) string {
	out = strings.TrimRight(out, " \t\r\n")
	return strings.TrimSpace(out[strings.LastIndexByte(out, '\n')+1:])
}

func specOf(desc *resource.Descriptor) (*resource.ShellSpec, error) {
	if desc == nil || desc.Shell == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("shell payload missing"))
	}
	return desc.Shell, nil
}
