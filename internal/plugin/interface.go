package plugin

import (
	"context"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
)

// Metadata identifies a back end and the resource kind it converges.
type Metadata struct {
	Name        string
	Kind        resource.Kind
	Description string
}

// Plugin is the two-phase contract every resource back end satisfies.
type Plugin interface {
	Metadata() Metadata

	// Evaluate compares the host with the descriptor. It MUST NOT mutate
	// any state; the engine relies on that for dry runs and verification.
	Evaluate(ctx context.Context, desc *resource.Descriptor) (*model.EvaluationResult, error)

	// Apply changes the host to match the descriptor. The engine only calls
	// it after Evaluate reported RequiresAction. Apply must be safe to
	// repeat with the same inputs.
	Apply(ctx context.Context, eval *model.EvaluationResult, desc *resource.Descriptor) (*model.StepResult, error)
}

// RunState exposes facts about the current run to back ends.
type RunState interface {
	// Changed reports whether a step with the given identity was applied
	// earlier in the run.
	Changed(identity string) bool
}

type runStateKey struct{}

// WithRunState attaches state to ctx.
func WithRunState(ctx context.Context, state RunState) context.Context {
	return context.WithValue(ctx, runStateKey{}, state)
}

// RunStateFrom returns the state attached to ctx, if any.
func RunStateFrom(ctx context.Context) (RunState, bool) {
	state, ok := ctx.Value(runStateKey{}).(RunState)
	return state, ok
}
