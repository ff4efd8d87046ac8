package plugin

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
	convergeerrors "github.com/datashades/converge/pkg/errors"
)

type stubPlugin struct {
	name string
	kind resource.Kind
}

func (s stubPlugin) Metadata() Metadata { return Metadata{Name: s.name, Kind: s.kind} }

func (stubPlugin) Evaluate(context.Context, *resource.Descriptor) (*model.EvaluationResult, error) {
	return &model.EvaluationResult{}, nil
}

func (stubPlugin) Apply(context.Context, *model.EvaluationResult, *resource.Descriptor) (*model.StepResult, error) {
	return &model.StepResult{}, nil
}

func TestRegistry(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	require.NoError(t, reg.Register(stubPlugin{name: "shell", kind: resource.KindShell}))
	require.NoError(t, reg.Register(stubPlugin{name: "service", kind: resource.KindService}))

	p, err := reg.Get(resource.KindShell)
	require.NoError(t, err)
	require.Equal(t, "shell", p.Metadata().Name)

	require.Equal(t, []resource.Kind{resource.KindService, resource.KindShell}, reg.Kinds())

	_, err = reg.Get(resource.KindPackage)
	var notFound ErrPluginNotFound
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, resource.KindPackage, notFound.Kind)
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	var pluginErr *convergeerrors.PluginError

	require.ErrorAs(t, reg.Register(nil), &pluginErr)
	require.ErrorAs(t, reg.Register(stubPlugin{name: "kindless"}), &pluginErr)

	require.NoError(t, reg.Register(stubPlugin{name: "shell", kind: resource.KindShell}))
	err := reg.Register(stubPlugin{name: "bash", kind: resource.KindShell})
	require.ErrorAs(t, err, &pluginErr)
	require.Contains(t, err.Error(), "already handled by shell")

	require.Panics(t, func() {
		NewRegistry().MustRegister(stubPlugin{name: "a", kind: resource.KindShell}, stubPlugin{name: "b", kind: resource.KindShell})
	})
}

type changedSet map[string]bool

func (c changedSet) Changed(identity string) bool { return c[identity] }

func TestRunStateRoundTrip(t *testing.T) {
	t.Parallel()

	_, ok := RunStateFrom(context.Background())
	require.False(t, ok)

	ctx := WithRunState(context.Background(), changedSet{"/etc/exports": true})
	state, ok := RunStateFrom(ctx)
	require.True(t, ok)
	require.True(t, state.Changed("/etc/exports"))
	require.False(t, state.Changed("/etc/hosts"))
}
