package tui

import (
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/datashades/converge/internal/model"
)

// Update handles Bubbletea messages and updates model state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.finished {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case StepStartMsg:
		if msg.Index < 0 {
			return m, nil
		}
		e := m.entry(msg.Index, msg.ID)
		e.Result.Status = model.StatusRunning
		return m, nil
	case StepCompleteMsg:
		if msg.Index < 0 {
			return m, nil
		}
		e := m.entry(msg.Index, msg.Result.StepID)
		wasDone := done(e.Result.Status)
		e.Result = msg.Result
		if !wasDone {
			m.completed++
		}
		return m, nil
	case RunDoneMsg:
		m.report = msg.Report
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.cancelled = true
			m.finished = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func done(status string) bool {
	switch status {
	case model.StatusApplied, model.StatusSkipped, model.StatusFailed, model.StatusWouldApply, model.StatusWouldRun:
		return true
	}
	return false
}
