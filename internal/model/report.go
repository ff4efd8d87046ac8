package model

import "time"

// RunReport aggregates the step results of one plan execution.
type RunReport struct {
	RunID    string
	Recipe   string
	DryRun   bool
	Started  time.Time
	Finished time.Time
	Steps    []StepResult
	// Err is the error that halted the run, if any.
	Err error
}

// Counts tallies results by status.
func (r *RunReport) Counts() map[string]int {
	counts := make(map[string]int)
	if r == nil {
		return counts
	}
	for _, step := range r.Steps {
		counts[step.Status]++
	}
	return counts
}

// Failed returns the first failed step, if any.
func (r *RunReport) Failed() (StepResult, bool) {
	if r != nil {
		for _, step := range r.Steps {
			if step.Status == StatusFailed {
				return step, true
			}
		}
	}
	return StepResult{}, false
}

// Changed reports whether any step altered the host.
func (r *RunReport) Changed() bool {
	if r == nil {
		return false
	}
	for _, step := range r.Steps {
		if step.Changed() {
			return true
		}
	}
	return false
}

// Drifted reports whether a dry run found anything out of date. Steps that
// would only run are not counted.
func (r *RunReport) Drifted() bool {
	return r.Counts()[StatusWouldApply] > 0
}

// Duration returns the wall time of the run.
func (r *RunReport) Duration() time.Duration {
	if r == nil || r.Finished.IsZero() {
		return 0
	}
	return r.Finished.Sub(r.Started)
}

// ExitCode is 1 when the run failed and 0 otherwise.
func (r *RunReport) ExitCode() int {
	if r == nil {
		return 1
	}
	if r.Err != nil {
		return 1
	}
	if _, failed := r.Failed(); failed {
		return 1
	}
	return 0
}
