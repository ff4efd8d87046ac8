package engine

import (
	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
)

// Observer receives progress notifications. Calls happen on the goroutine
// running the plan, in step order.
type Observer interface {
	StepStarted(desc resource.Descriptor, index, total int)
	StepFinished(result model.StepResult, index, total int)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are ignored.
type ObserverFuncs struct {
	Started  func(desc resource.Descriptor, index, total int)
	Finished func(result model.StepResult, index, total int)
}

func (o ObserverFuncs) StepStarted(desc resource.Descriptor, index, total int) {
	if o.Started != nil {
		o.Started(desc, index, total)
	}
}

func (o ObserverFuncs) StepFinished(result model.StepResult, index, total int) {
	if o.Finished != nil {
		o.Finished(result, index, total)
	}
}
