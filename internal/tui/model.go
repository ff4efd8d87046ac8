package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
	"github.com/datashades/converge/internal/tui/components"
)

// StepStartMsg indicates a step has started executing.
type StepStartMsg struct {
	Index int
	ID    string
}

// StepCompleteMsg reports that a step has finished execution.
type StepCompleteMsg struct {
	Index  int
	Result model.StepResult
}

// RunDoneMsg carries the final report and ends the program.
type RunDoneMsg struct {
	Report *model.RunReport
}

// Model is the Bubbletea state for a single converge run.
type Model struct {
	recipe    string
	dryRun    bool
	entries   []components.StepEntry
	completed int
	spinner   spinner.Model
	report    *model.RunReport
	finished  bool
	cancelled bool
}

// NewModel seeds one pending entry per plan step.
func NewModel(plan *resource.Plan, dryRun bool) Model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = runningStyle

	m := Model{dryRun: dryRun, spinner: s}
	if plan != nil {
		m.recipe = plan.Name
		m.entries = make([]components.StepEntry, 0, plan.Len())
		for _, desc := range plan.Steps {
			m.entries = append(m.entries, components.StepEntry{
				ID:     desc.Identity,
				Result: model.StepResult{StepID: desc.Identity, Kind: string(desc.Kind), Status: model.StatusPending},
			})
		}
	}
	return m
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) TotalSteps() int     { return len(m.entries) }
func (m Model) CompletedSteps() int { return m.completed }
func (m Model) IsFinished() bool    { return m.finished }
func (m Model) Cancelled() bool     { return m.cancelled }

// Report is the final report once RunDoneMsg arrived.
func (m Model) Report() *model.RunReport { return m.report }

// entry returns the slot for index, growing the list for steps the
// model was not seeded with.
func (m *Model) entry(index int, id string) *components.StepEntry {
	for len(m.entries) <= index {
		m.entries = append(m.entries, components.StepEntry{Result: model.StepResult{Status: model.StatusPending}})
	}
	e := &m.entries[index]
	if e.ID == "" {
		e.ID = id
		e.Result.StepID = id
	}
	return e
}
