package tui

import "github.com/charmbracelet/lipgloss"

// Adaptive colours keep the display readable on light terminals.
var (
	accent = lipgloss.AdaptiveColor{Light: "25", Dark: "39"}
	muted  = lipgloss.AdaptiveColor{Light: "245", Dark: "241"}

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "90", Dark: "212"})
	sectionStyle = lipgloss.NewStyle().Bold(true).Foreground(accent).MarginTop(1)
	summaryStyle = lipgloss.NewStyle().MarginTop(1).PaddingLeft(1).Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(muted)

	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	runningStyle = lipgloss.NewStyle().Foreground(accent)
	failureStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	skippedStyle = lipgloss.NewStyle().Foreground(muted)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "136", Dark: "214"})
)
