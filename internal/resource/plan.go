package resource

import "fmt"

// Plan is an ordered list of descriptors for one recipe run. Later steps may
// rely on the effects of earlier ones, so order is significant.
type Plan struct {
	Name  string
	Steps []Descriptor
}

// NewPlan returns an empty plan.
func NewPlan(name string) *Plan {
	return &Plan{Name: name}
}

// Add appends descriptors in order.
func (p *Plan) Add(steps ...Descriptor) {
	p.Steps = append(p.Steps, steps...)
}

// Len returns the number of steps.
func (p *Plan) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Steps)
}

// Validate checks every descriptor.
func (p *Plan) Validate() error {
	if p == nil {
		return fmt.Errorf("plan is nil")
	}
	for i, step := range p.Steps {
		if err := step.Validate(); err != nil {
			return fmt.Errorf("plan %s step %d: %w", p.Name, i, err)
		}
	}
	return nil
}

// Identities returns the step keys in order.
func (p *Plan) Identities() []string {
	out := make([]string, 0, p.Len())
	for _, step := range p.Steps {
		out = append(out, step.Key())
	}
	return out
}
