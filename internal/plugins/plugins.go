// Package plugins wires every resource back end into a registry.
package plugins

import (
	"io"
	"time"

	"github.com/datashades/converge/internal/plugin"
	commandplugin "github.com/datashades/converge/internal/plugins/command"
	directoryplugin "github.com/datashades/converge/internal/plugins/directory"
	fileplugin "github.com/datashades/converge/internal/plugins/file"
	"github.com/datashades/converge/internal/plugins/internalexec"
	lineinfileplugin "github.com/datashades/converge/internal/plugins/lineinfile"
	packageplugin "github.com/datashades/converge/internal/plugins/package"
	repoplugin "github.com/datashades/converge/internal/plugins/repo"
	serviceplugin "github.com/datashades/converge/internal/plugins/service"
)

// Options select host-specific behaviour of the back ends.
type Options struct {
	Runner         internalexec.Runner
	PackageManager string
	Shell          string
	ShellTimeout   time.Duration
	Output         io.Writer
}

// NewRegistry returns a registry holding one back end per resource kind.
func NewRegistry(opts Options) (*plugin.Registry, error) {
	runner := opts.Runner
	if runner == nil {
		runner = internalexec.OSRunner{}
	}
	manager, err := packageplugin.ManagerByName(opts.PackageManager)
	if err != nil {
		return nil, err
	}

	reg := plugin.NewRegistry()
	for _, p := range []plugin.Plugin{
		packageplugin.New(runner, manager),
		fileplugin.New(),
		directoryplugin.New(),
		lineinfileplugin.New(),
		serviceplugin.New(runner),
		commandplugin.New(runner, commandplugin.Options{
			Shell:   opts.Shell,
			Timeout: opts.ShellTimeout,
			Output:  opts.Output,
		}),
		repoplugin.New(),
	} {
		if err := reg.Register(p); err != nil {
			return nil, err
		}
	}
	return reg, nil
}
