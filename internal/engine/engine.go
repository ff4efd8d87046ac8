// Package engine drives a resource plan against the host: guard, evaluate,
// then apply only where the evaluation found drift.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/datashades/converge/internal/logger"
	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugin"
	"github.com/datashades/converge/internal/resource"
	convergeerrors "github.com/datashades/converge/pkg/errors"
)

// Options configures an Engine.
type Options struct {
	Registry *plugin.Registry
	Logger   *logger.Logger
	// DryRun evaluates guards and resources without applying anything.
	DryRun bool
	// LockPath is the host lock file. Empty disables locking.
	LockPath string
	// RunID labels the run in logs and reports. Generated when empty.
	RunID     string
	Observers []Observer
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine executes plans sequentially.
type Engine struct {
	opts Options
}

// New validates opts and returns an Engine.
func New(opts Options) (*Engine, error) {
	if opts.Registry == nil {
		return nil, convergeerrors.NewExecutionError("", errors.New("plugin registry is nil"))
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{opts: opts}, nil
}

// Run executes plan and returns a report covering every step that was
// reached. The first failure halts the plan; the returned error is the
// same as report.Err.
func (e *Engine) Run(ctx context.Context, plan *resource.Plan) (*model.RunReport, error) {
	runID := e.opts.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	report := &model.RunReport{
		RunID:   runID,
		DryRun:  e.opts.DryRun,
		Started: e.opts.Now(),
	}
	if plan != nil {
		report.Recipe = plan.Name
	}

	finish := func(err error) (*model.RunReport, error) {
		report.Finished = e.opts.Now()
		report.Err = err
		return report, err
	}

	if err := plan.Validate(); err != nil {
		return finish(convergeerrors.NewExecutionError("", err))
	}

	log := e.opts.Logger.WithFields(map[string]any{
		"run_id": runID,
		"recipe": plan.Name,
	})
	rc := newRunContext(runID, e.opts.DryRun, log)

	err := withHostLock(e.opts.LockPath, func() error {
		log.Info(fmt.Sprintf("converging %d steps", plan.Len()))
		return e.execute(plugin.WithRunState(ctx, rc), rc, plan)
	})
	report.Steps = rc.snapshot()
	if err != nil {
		log.Error(err, "run halted")
	}
	return finish(err)
}

func (e *Engine) execute(ctx context.Context, rc *runContext, plan *resource.Plan) error {
	total := plan.Len()
	for i := range plan.Steps {
		desc := plan.Steps[i]
		if err := ctx.Err(); err != nil {
			return convergeerrors.NewExecutionError(desc.Identity, err)
		}

		for _, obs := range e.opts.Observers {
			obs.StepStarted(desc, i, total)
		}

		start := e.opts.Now()
		res, err := e.runStep(ctx, rc, &desc)
		res.StepID = desc.Identity
		res.Kind = string(desc.Kind)
		res.Duration = e.opts.Now().Sub(start)
		if res.Timestamp.IsZero() {
			res.Timestamp = e.opts.Now()
		}
		if err != nil {
			res.Status = model.StatusFailed
			res.Error = err
			if res.Message == "" {
				res.Message = err.Error()
			}
		}

		switch res.Status {
		case model.StatusApplied, model.StatusWouldApply:
			rc.markChanged(desc.Identity)
		}
		rc.record(res)
		e.logStep(rc, res)

		for _, obs := range e.opts.Observers {
			obs.StepFinished(res, i, total)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) runStep(ctx context.Context, rc *runContext, desc *resource.Descriptor) (model.StepResult, error) {
	kind := string(desc.Kind)

	if !rc.claim(desc.Key()) {
		return model.StepResult{Status: model.StatusSkipped, Message: "duplicate of an earlier step"}, nil
	}

	proceed, err := desc.Guard.Evaluate(ctx)
	if err != nil {
		return model.StepResult{}, convergeerrors.NewGuardEvaluationError(desc.Identity, kind, err)
	}
	if !proceed {
		return model.StepResult{
			Status:  model.StatusSkipped,
			Message: "guard not satisfied: " + desc.Guard.String(),
		}, nil
	}

	impl, err := e.opts.Registry.Get(desc.Kind)
	if err != nil {
		return model.StepResult{}, convergeerrors.NewActionError(desc.Identity, kind, err)
	}

	eval, err := impl.Evaluate(ctx, desc)
	if err != nil {
		return model.StepResult{}, convergeerrors.NewActionError(desc.Identity, kind, err)
	}
	if eval == nil {
		return model.StepResult{}, convergeerrors.NewActionError(desc.Identity, kind, errors.New("evaluation returned no result"))
	}

	if !eval.RequiresAction {
		msg := eval.Message
		if msg == "" {
			msg = "already converged"
		}
		return model.StepResult{Status: model.StatusSkipped, Message: msg}, nil
	}

	if rc.DryRun {
		status := model.StatusWouldApply
		if eval.CurrentState == model.StatusUnknown {
			status = model.StatusWouldRun
		}
		return model.StepResult{
			Status:  status,
			Message: eval.Message,
			Diff:    eval.Diff,
		}, nil
	}

	applied, err := impl.Apply(ctx, eval, desc)
	var res model.StepResult
	if applied != nil {
		res = *applied
	}
	if err != nil {
		return res, convergeerrors.NewActionError(desc.Identity, kind, err)
	}
	if res.Status == "" {
		res.Status = model.StatusApplied
	}
	if res.Message == "" {
		res.Message = "completed"
	}
	return res, nil
}

func (e *Engine) logStep(rc *runContext, res model.StepResult) {
	log := rc.Logger.WithFields(map[string]any{
		"identity":    res.StepID,
		"kind":        res.Kind,
		"status":      res.Status,
		"duration_ms": res.Duration.Milliseconds(),
	})
	switch res.Status {
	case model.StatusFailed:
		log.Error(res.Error, res.Message)
	case model.StatusSkipped:
		log.Debug(res.Message)
	default:
		log.Info(res.Message)
	}
}
