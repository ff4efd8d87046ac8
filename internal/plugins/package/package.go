package packageplugin

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/internalexec"
	"github.com/datashades/converge/internal/resource"
)

// Manager knows how to query and install packages on one distribution family.
type Manager struct {
	Name    string
	Query   func(name string) internalexec.Command
	Install func(names []string) internalexec.Command
}

var (
	// Apt covers Debian and Ubuntu hosts.
	Apt = Manager{
		Name: "apt",
		Query: func(name string) internalexec.Command {
			return internalexec.Command{Name: "dpkg-query", Args: []string{"-W", "-f=${Status}", name}}
		},
		Install: func(names []string) internalexec.Command {
			return internalexec.Command{
				Name: "apt-get",
				Args: append([]string{"install", "-y"}, names...),
				Env:  []string{"DEBIAN_FRONTEND=noninteractive", "PATH=/usr/sbin:/usr/bin:/sbin:/bin"},
			}
		},
	}
	// Yum covers Amazon Linux and older RHEL hosts.
	Yum = Manager{
		Name:  "yum",
		Query: rpmQuery,
		Install: func(names []string) internalexec.Command {
			return internalexec.Command{Name: "yum", Args: append([]string{"install", "-y"}, names...)}
		},
	}
	// Dnf covers current RHEL and Fedora hosts.
	Dnf = Manager{
		Name:  "dnf",
		Query: rpmQuery,
		Install: func(names []string) internalexec.Command {
			return internalexec.Command{Name: "dnf", Args: append([]string{"install", "-y"}, names...)}
		},
	}
)

func rpmQuery(name string) internalexec.Command {
	return internalexec.Command{Name: "rpm", Args: []string{"-q", name}}
}

// ManagerByName resolves a configured manager. "auto" or an empty name
// probes the host.
func ManagerByName(name string) (Manager, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "apt":
		return Apt, nil
	case "yum":
		return Yum, nil
	case "dnf":
		return Dnf, nil
	case "", "auto":
		return Detect(exec.LookPath), nil
	default:
		return Manager{}, fmt.Errorf("unknown package manager %q", name)
	}
}

// Detect picks the first manager whose install tool lookPath can find,
// falling back to yum.
func Detect(lookPath func(string) (string, error)) Manager {
	for _, candidate := range []struct {
		bin string
		mgr Manager
	}{{"dnf", Dnf}, {"yum", Yum}, {"apt-get", Apt}} {
		if _, err := lookPath(candidate.bin); err == nil {
			return candidate.mgr
		}
	}
	return Yum
}

type packagePlugin struct {
	runner  internalexec.Runner
	manager Manager
}

// New creates a package back end using runner and manager.
func New(runner internalexec.Runner, manager Manager) plugin.Plugin {
	if runner == nil {
		runner = internalexec.OSRunner{}
	}
	return &packagePlugin{runner: runner, manager: manager}
}

var _ plugin.Plugin = (*packagePlugin)(nil)

func (p *packagePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "package",
		Kind:        resource.KindPackage,
		Description: "Installs system packages with " + p.manager.Name + ".",
	}
}

type packageEvaluationData struct {
	Missing []string
}

func (p *packagePlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, plugin.NewStateError(desc.Identity, fmt.Errorf("context cancelled: %w", err))
	}

	var missing []string
	for _, name := range spec.Names {
		installed, err := p.installed(ctx, name)
		if err != nil {
			return nil, plugin.NewStateError(desc.Identity, err)
		}
		if !installed {
			missing = append(missing, name)
		}
	}

	if len(missing) == 0 {
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      fmt.Sprintf("all packages installed: %s", strings.Join(spec.Names, ", ")),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusMissing,
		RequiresAction: true,
		Message:        fmt.Sprintf("packages not installed: %s", strings.Join(missing, ", ")),
		Diff:           fmt.Sprintf("Would install: %s", strings.Join(missing, ", ")),
		InternalData:   &packageEvaluationData{Missing: missing},
	}, nil
}

func (p *packagePlugin) installed(ctx context.Context, name string) (bool, error) {
	res, err := p.runner.Run(ctx, p.manager.Query(name))
	if err == nil {
		// dpkg-query succeeds for removed packages that left config behind.
		if p.manager.Name == Apt.Name && res.Stdout != "" && !strings.Contains(res.Stdout, "install ok installed") {
			return false, nil
		}
		return true, nil
	}
	if internalexec.Exited(res, err) {
		return false, nil
	}
	return false, fmt.Errorf("query package %s: %w", name, err)
}

func (p *packagePlugin) Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	if _, err := specOf(desc); err != nil {
		return nil, err
	}

	var data *packageEvaluationData
	if eval != nil {
		data, _ = eval.InternalData.(*packageEvaluationData)
	}
	if data == nil {
		fresh, err := p.Evaluate(ctx, desc)
		if err != nil {
			return nil, err
		}
		if !fresh.RequiresAction {
			return &model.StepResult{StepID: desc.Identity, Status: model.StatusSkipped, Message: fresh.Message}, nil
		}
		data = fresh.InternalData.(*packageEvaluationData)
	}

	cmd := p.manager.Install(data.Missing)
	res, err := p.runner.Run(ctx, cmd)
	if err != nil {
		if out := internalexec.PrimaryOutput(res); out != "" {
			err = fmt.Errorf("%w: %s", err, out)
		}
		return &model.StepResult{
			StepID:  desc.Identity,
			Status:  model.StatusFailed,
			Message: fmt.Sprintf("failed to install packages: %v", err),
			Error:   err,
		}, plugin.NewExecutionError(desc.Identity, fmt.Errorf("%s: %w", cmd, err))
	}

	return &model.StepResult{
		StepID:  desc.Identity,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("installed packages: %s", strings.Join(data.Missing, ", ")),
	}, nil
}

func specOf(desc *resource.Descriptor) (*resource.PackageSpec, error) {
	if desc == nil || desc.Package == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("package payload missing"))
	}
	return desc.Package, nil
}
