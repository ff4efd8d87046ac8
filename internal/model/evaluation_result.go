package model

// VerificationStatus classifies a resource relative to its declared state.
type VerificationStatus string

const (
	StatusSatisfied VerificationStatus = "satisfied"
	StatusMissing   VerificationStatus = "missing"
	StatusDrifted   VerificationStatus = "drifted"
	StatusUnknown   VerificationStatus = "unknown"
)

// IsValid reports whether s is one of the known states.
func (s VerificationStatus) IsValid() bool {
	switch s {
	case StatusSatisfied, StatusMissing, StatusDrifted, StatusUnknown:
		return true
	}
	return false
}

// EvaluationResult is returned by Plugin.Evaluate and handed to Plugin.Apply
// when the resource needs changing.
type EvaluationResult struct {
	// StepID is the identity of the evaluated resource.
	StepID string

	CurrentState VerificationStatus

	// RequiresAction is true for missing or drifted resources and for kinds
	// that always act, such as shell commands.
	RequiresAction bool

	// Message explains what was found. Never empty.
	Message string

	// Diff is a unified diff of the pending change, when one can be computed.
	Diff string

	// InternalData is opaque state carried from Evaluate to Apply.
	InternalData any
}
