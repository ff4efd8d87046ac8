package serviceplugin

import (
	"context"
	"fmt"
	"strings"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/plugins/internalexec"
	"github.com/datashades/converge/internal/resource"
)

type servicePlugin struct {
	runner    internalexec.Runner
	systemctl string
}

// New creates the systemd service back end.
func New(runner internalexec.Runner) plugin.Plugin {
	if runner == nil {
		runner = internalexec.OSRunner{}
	}
	return &servicePlugin{runner: runner, systemctl: "systemctl"}
}

var _ plugin.Plugin = (*servicePlugin)(nil)

func (p *servicePlugin) Metadata() plugin.Metadata {
	return plugin.Metadata{
		Name:        "service",
		Kind:        resource.KindService,
		Description: "Converges systemd unit enablement and run state.",
	}
}

type serviceEvaluationData struct {
	Pending []string
}

func (p *servicePlugin) Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	enabled, err := p.query(ctx, "is-enabled", spec.Name)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}
	active, err := p.query(ctx, "is-active", spec.Name)
	if err != nil {
		return nil, plugin.NewStateError(desc.Identity, err)
	}

	pending := plan(ctx, spec, enabled, active)
	if len(pending) == 0 {
		return &model.EvaluationResult{
			StepID:       desc.Identity,
			CurrentState: model.StatusSatisfied,
			Message:      fmt.Sprintf("service %s is %s", spec.Name, describe(enabled, active)),
		}, nil
	}

	return &model.EvaluationResult{
		StepID:         desc.Identity,
		CurrentState:   model.StatusDrifted,
		RequiresAction: true,
		Message:        fmt.Sprintf("service %s is %s, would %s", spec.Name, describe(enabled, active), strings.Join(pending, ", ")),
		Diff:           fmt.Sprintf("Would run: %s", strings.Join(pending, ", ")),
		InternalData:   &serviceEvaluationData{Pending: pending},
	}, nil
}

// plan returns the systemctl verbs needed, enablement first.
func plan(ctx context.Context, spec *resource.ServiceSpec, enabled, active bool) []string {
	var pending []string
	if spec.Has(resource.ServiceEnable) && !enabled {
		pending = append(pending, string(resource.ServiceEnable))
	}
	if spec.Has(resource.ServiceDisable) && enabled {
		pending = append(pending, string(resource.ServiceDisable))
	}

	switch {
	case spec.Has(resource.ServiceStop):
		if active {
			pending = append(pending, string(resource.ServiceStop))
		}
	case !active && (spec.Has(resource.ServiceStart) || spec.Has(resource.ServiceRestart)):
		pending = append(pending, string(resource.ServiceStart))
	case active && spec.Has(resource.ServiceRestart) && restartDue(ctx, spec.Subscribes):
		pending = append(pending, string(resource.ServiceRestart))
	}
	return pending
}

func restartDue(ctx context.Context, subscribes []string) bool {
	if len(subscribes) == 0 {
		return true
	}
	state, ok := plugin.RunStateFrom(ctx)
	if !ok {
		return false
	}
	for _, id := range subscribes {
		if state.Changed(id) {
			return true
		}
	}
	return false
}

func describe(enabled, active bool) string {
	e, a := "disabled", "inactive"
	if enabled {
		e = "enabled"
	}
	if active {
		a = "active"
	}
	return e + " and " + a
}

// query runs a systemctl predicate. Exit status 0 means true; any other
// completed exit means false.
func (p *servicePlugin) query(ctx context.Context, verb, name string) (bool, error) {
	res, err := p.runner.Run(ctx, internalexec.Command{Name: p.systemctl, Args: []string{verb, name}})
	if err == nil {
		return true, nil
	}
	if internalexec.Exited(res, err) {
		return false, nil
	}
	return false, fmt.Errorf("systemctl %s %s: %w", verb, name, err)
}

func (p *servicePlugin) Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error) {
	spec, err := specOf(desc)
	if err != nil {
		return nil, err
	}

	var data *serviceEvaluationData
	if eval != nil {
		data, _ = eval.InternalData.(*serviceEvaluationData)
	}
	if data == nil {
		fresh, err := p.Evaluate(ctx, desc)
		if err != nil {
			return nil, err
		}
		if !fresh.RequiresAction {
			return &model.StepResult{StepID: desc.Identity, Status: model.StatusSkipped, Message: fresh.Message}, nil
		}
		data = fresh.InternalData.(*serviceEvaluationData)
	}

	for _, verb := range data.Pending {
		res, err := p.runner.Run(ctx, internalexec.Command{Name: p.systemctl, Args: []string{verb, spec.Name}})
		if err != nil {
			if out := internalexec.PrimaryOutput(res); out != "" {
				err = fmt.Errorf("%w: %s", err, out)
			}
			err = fmt.Errorf("systemctl %s %s: %w", verb, spec.Name, err)
			return &model.StepResult{
				StepID:  desc.Identity,
				Status:  model.StatusFailed,
				Message: err.Error(),
				Error:   err,
			}, plugin.NewExecutionError(desc.Identity, err)
		}
	}

	return &model.StepResult{
		StepID:  desc.Identity,
		Status:  model.StatusApplied,
		Message: fmt.Sprintf("service %s: %s", spec.Name, strings.Join(data.Pending, ", ")),
	}, nil
}

func specOf(desc *resource.Descriptor) (*resource.ServiceSpec, error) {
	if desc == nil || desc.Service == nil {
		id := ""
		if desc != nil {
			id = desc.Identity
		}
		return nil, plugin.NewValidationError(id, fmt.Errorf("service payload missing"))
	}
	return desc.Service, nil
}
