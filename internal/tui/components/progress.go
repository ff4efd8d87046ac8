package components

import (
	"fmt"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"
)

const barWidth = 30

// Progress is a step counter followed by a bar.
type Progress struct {
	bar   progress.Model
	total int
}

func NewProgress(total int) Progress {
	bar := progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage())
	bar.Width = barWidth
	return Progress{bar: bar, total: total}
}

// Ratio is completed/total clamped to [0, 1].
func (p Progress) Ratio(completed int) float64 {
	if p.total <= 0 || completed <= 0 {
		return 0
	}
	return min(1.0, float64(completed)/float64(p.total))
}

// View renders the counter and bar for completed steps.
func (p Progress) View(completed int) string {
	label := lipgloss.NewStyle().Bold(true).Render(fmt.Sprintf("%d/%d", completed, p.total))
	return lipgloss.JoinHorizontal(lipgloss.Left, label, " ", p.bar.ViewAs(p.Ratio(completed)))
}
