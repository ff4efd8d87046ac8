package serviceplugin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/internalexec"
	"github.com/datashades/converge/internal/resource"
)

// host scripts systemctl for one unit.
func host(enabled, active bool) *internalexec.Fake {
	return &internalexec.Fake{Handler: func(line string) internalexec.Result {
		switch line {
		case "systemctl is-enabled nfs":
			if enabled {
				return internalexec.Result{Stdout: "enabled"}
			}
			return internalexec.Result{Stdout: "disabled", ExitCode: 1}
		case "systemctl is-active nfs":
			if active {
				return internalexec.Result{Stdout: "active"}
			}
			return internalexec.Result{Stdout: "inactive", ExitCode: 3}
		}
		return internalexec.Result{}
	}}
}

type changed map[string]bool

func (c changed) Changed(id string) bool { return c[id] }

func TestServicePlans(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		desc    resource.Descriptor
		enabled bool
		active  bool
		ctx     context.Context
		want    []string
	}{
		{
			name: "enable and start from scratch",
			desc: resource.Service("nfs", resource.ServiceEnable, resource.ServiceStart),
			want: []string{"systemctl enable nfs", "systemctl start nfs"},
		},
		{
			name:    "already converged",
			desc:    resource.Service("nfs", resource.ServiceEnable, resource.ServiceStart),
			enabled: true, active: true,
		},
		{
			name:    "stop running",
			desc:    resource.Service("nfs", resource.ServiceStop),
			enabled: true, active: true,
			want: []string{"systemctl stop nfs"},
		},
		{
			name: "stop when stopped",
			desc: resource.Service("nfs", resource.ServiceStop),
		},
		{
			name:    "disable",
			desc:    resource.Service("nfs", resource.ServiceDisable),
			enabled: true,
			want:    []string{"systemctl disable nfs"},
		},
		{
			name:    "unconditional restart",
			desc:    resource.Service("nfs", resource.ServiceRestart),
			enabled: true, active: true,
			want: []string{"systemctl restart nfs"},
		},
		{
			name: "restart of stopped service starts it",
			desc: resource.Service("nfs", resource.ServiceRestart).Subscribe("/etc/exports"),
			want: []string{"systemctl start nfs"},
		},
		{
			name:    "subscribed restart without change",
			desc:    resource.Service("nfs", resource.ServiceRestart).Subscribe("/etc/exports"),
			enabled: true, active: true,
			ctx:     plugin.WithRunState(context.Background(), changed{}),
		},
		{
			name:    "subscribed restart after change",
			desc:    resource.Service("nfs", resource.ServiceRestart).Subscribe("/etc/exports"),
			enabled: true, active: true,
			ctx:     plugin.WithRunState(context.Background(), changed{"/etc/exports": true}),
			want:    []string{"systemctl restart nfs"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctx := tt.ctx
			if ctx == nil {
				ctx = context.Background()
			}
			runner := host(tt.enabled, tt.active)
			p := New(runner)

			eval, err := p.Evaluate(ctx, &tt.desc)
			require.NoError(t, err)
			require.Equal(t, len(tt.want) > 0, eval.RequiresAction, eval.Message)
			if !eval.RequiresAction {
				return
			}

			res, err := p.Apply(ctx, eval, &tt.desc)
			require.NoError(t, err)
			require.Equal(t, model.StatusApplied, res.Status)

			calls := runner.Calls()
			require.Equal(t, tt.want, calls[2:])
		})
	}
}

func TestApplyFailureCarriesOutput(t *testing.T) {
	t.Parallel()

	runner := &internalexec.Fake{Handler: func(line string) internalexec.Result {
		if line == "systemctl start httpd" {
			return internalexec.Result{Stderr: "Job for httpd.service failed", ExitCode: 1}
		}
		return internalexec.Result{ExitCode: 3}
	}}
	desc := resource.Service("httpd", resource.ServiceStart)
	res, err := New(runner).Apply(context.Background(), nil, &desc)
	require.True(t, errors.Is(err, &plugin.ExecutionError{}))
	require.Equal(t, model.StatusFailed, res.Status)
	require.Contains(t, res.Message, "Job for httpd.service failed")
}

func TestMissingSystemctlIsStateError(t *testing.T) {
	t.Parallel()

	runner := brokenRunner{}
	desc := resource.Service("nfs", resource.ServiceStart)
	_, err := New(runner).Evaluate(context.Background(), &desc)
	require.True(t, errors.Is(err, &plugin.StateError{}))
}

type brokenRunner struct{}

func (brokenRunner) Run(context.Context, internalexec.Command) (internalexec.Result, error) {
	return internalexec.Result{}, errors.New(`exec: "systemctl": executable file not found in $PATH`)
}
