package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/tui/components"
)

// View renders the current state of the model.
func (m Model) View() string {
	title := "converge • " + m.title()
	if m.dryRun {
		title += " (dry run)"
	}
	sections := []string{titleStyle.Render(title)}

	total := len(m.entries)
	sections = append(sections, sectionStyle.Render("Progress"), components.NewProgress(total).View(m.completed))

	if total > 0 {
		sections = append(sections, sectionStyle.Render("Steps"), m.renderEntries())
	}

	summary := components.NewSummary(components.SummaryData{
		Total:     total,
		Completed: m.completed,
		Finished:  m.finished,
		Cancelled: m.cancelled,
		Counts:    m.report.Counts(),
		Failure:   failure(m.report),
	}).View()
	if strings.TrimSpace(summary) != "" {
		sections = append(sections, sectionStyle.Render("Summary"), summaryStyle.Render(summary))
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...) + "\n"
}

func (m Model) renderEntries() string {
	lines := make([]string, 0, len(m.entries))
	for _, entry := range components.NewStepList(m.entries).Entries() {
		icon := StatusIcon(entry.Result.Status)
		if entry.Result.Status == model.StatusRunning {
			icon = m.spinner.View()
		}
		lines = append(lines, " "+icon+" "+describe(entry))
	}
	return strings.Join(lines, "\n")
}

func describe(entry components.StepEntry) string {
	res := entry.Result
	line := entry.ID
	if res.Kind != "" {
		line = fmt.Sprintf("%s[%s]", res.Kind, entry.ID)
	}
	if msg := strings.TrimSpace(res.Message); msg != "" {
		line += ": " + msg
	}
	if res.Duration > 0 {
		line = fmt.Sprintf("%s (%s)", line, res.Duration.Truncate(10*time.Millisecond))
	}
	return line
}

func failure(report *model.RunReport) string {
	if report == nil || report.Err == nil {
		return ""
	}
	return report.Err.Error()
}

func (m Model) title() string {
	if strings.TrimSpace(m.recipe) != "" {
		return m.recipe
	}
	return "run"
}

// StatusIcon returns the glyph representing a step status.
func StatusIcon(status string) string {
	switch status {
	case model.StatusApplied:
		return successStyle.Render("✓")
	case model.StatusRunning:
		return runningStyle.Render("⏳")
	case model.StatusFailed:
		return failureStyle.Render("✗")
	case model.StatusSkipped:
		return skippedStyle.Render("⊘")
	case model.StatusWouldApply:
		return pendingStyle.Render("↻")
	case model.StatusWouldRun:
		return pendingStyle.Render("▷")
	default:
		return pendingStyle.Render("…")
	}
}
