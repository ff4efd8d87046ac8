package model

import (
	"time"
)

const (
	// StatusPending indicates a step has not started yet.
	StatusPending = "pending"
	// StatusRunning indicates a step is actively executing.
	StatusRunning = "running"
	// StatusApplied marks a step whose action ran and changed the host.
	StatusApplied = "applied"
	// StatusSkipped covers a false guard, an already converged resource and
	// a repeated identity.
	StatusSkipped = "skipped"
	// StatusFailed marks a guard or action failure.
	StatusFailed = "failed"
	// StatusWouldApply marks a step that a dry run found out of date.
	StatusWouldApply = "would_apply"
	// StatusWouldRun marks a step a dry run cannot observe, such as a shell
	// command or a fetch. It would run but is not evidence of drift.
	StatusWouldRun = "would_run"
)

// StepResult captures the outcome of a single resource step.
type StepResult struct {
	StepID    string
	Kind      string
	Status    string
	Message   string
	Diff      string
	Error     error
	Duration  time.Duration
	Timestamp time.Time
}

// Changed reports whether the step altered the host.
func (r StepResult) Changed() bool {
	return r.Status == StatusApplied
}
