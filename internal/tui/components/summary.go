package components

import (
	"fmt"
	"strings"

	"github.com/datashades/converge/internal/model"
)

// SummaryData aggregates counts for rendering summaries.
type SummaryData struct {
	Total     int
	Completed int
	Finished  bool
	Cancelled bool
	// Counts is the final tally by status, available once the run ended.
	Counts map[string]int
	// Failure is the error that halted the run.
	Failure string
}

// Summary renders a textual execution summary.
type Summary struct {
	data SummaryData
}

func NewSummary(data SummaryData) Summary {
	return Summary{data: data}
}

// View renders the summary.
func (s Summary) View() string {
	var lines []string
	if s.data.Total > 0 {
		lines = append(lines, fmt.Sprintf("Steps: %d/%d completed", s.data.Completed, s.data.Total))
	}

	switch {
	case s.data.Cancelled:
		lines = append(lines, "Run cancelled")
	case s.data.Failure != "":
		lines = append(lines, "Run halted: "+s.data.Failure)
	case s.data.Finished && s.data.Total > 0:
		if s.data.Completed == s.data.Total {
			lines = append(lines, "Run finished successfully")
		} else {
			lines = append(lines, "Run finished with pending steps")
		}
	}

	if len(s.data.Counts) > 0 {
		var parts []string
		for _, status := range []string{model.StatusApplied, model.StatusWouldApply, model.StatusWouldRun, model.StatusSkipped, model.StatusFailed} {
			if n := s.data.Counts[status]; n > 0 {
				parts = append(parts, fmt.Sprintf("%d %s", n, status))
			}
		}
		if len(parts) > 0 {
			lines = append(lines, strings.Join(parts, ", "))
		}
	}

	return strings.Join(lines, "\n")
}
