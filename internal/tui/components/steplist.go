package components

import (
	"github.com/datashades/converge/internal/model"
)

// StepEntry is a single plan step and its latest result.
type StepEntry struct {
	ID     string
	Result model.StepResult
}

// StepList holds steps in plan order.
type StepList struct {
	entries []StepEntry
}

// NewStepList copies entries so later updates do not leak into a render.
func NewStepList(entries []StepEntry) StepList {
	clone := make([]StepEntry, len(entries))
	copy(clone, entries)
	return StepList{entries: clone}
}

// Entries returns the ordered step entries.
func (s StepList) Entries() []StepEntry {
	clone := make([]StepEntry, len(s.entries))
	copy(clone, s.entries)
	return clone
}

// Count returns how many entries have status.
func (s StepList) Count(status string) int {
	n := 0
	for _, e := range s.entries {
		if e.Result.Status == status {
			n++
		}
	}
	return n
}
