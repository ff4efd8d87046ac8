package engine

import (
	"sync"

	"github.com/datashades/converge/internal/logger"
	"github.com/datashades/converge/internal/model"
)

// runContext holds the mutable state of a single plan execution.
type runContext struct {
	RunID  string
	DryRun bool
	Logger *logger.Logger

	mu      sync.Mutex
	seen    map[string]struct{}
	changed map[string]struct{}
	results []model.StepResult
}

func newRunContext(runID string, dryRun bool, log *logger.Logger) *runContext {
	return &runContext{
		RunID:   runID,
		DryRun:  dryRun,
		Logger:  log,
		seen:    make(map[string]struct{}),
		changed: make(map[string]struct{}),
	}
}

// claim records key and reports whether it was new.
func (rc *runContext) claim(key string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if _, ok := rc.seen[key]; ok {
		return false
	}
	rc.seen[key] = struct{}{}
	return true
}

func (rc *runContext) markChanged(identity string) {
	rc.mu.Lock()
	rc.changed[identity] = struct{}{}
	rc.mu.Unlock()
}

// Changed implements plugin.RunState. In a dry run, steps that would apply
// count as changed so dependent restarts show up in the plan.
func (rc *runContext) Changed(identity string) bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	_, ok := rc.changed[identity]
	return ok
}

func (rc *runContext) record(res model.StepResult) {
	rc.mu.Lock()
	rc.results = append(rc.results, res)
	rc.mu.Unlock()
}

func (rc *runContext) snapshot() []model.StepResult {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]model.StepResult(nil), rc.results...)
}
