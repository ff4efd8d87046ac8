package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
)

// PlainObserver prints one line per finished step.
type PlainObserver struct {
	Out io.Writer
	// Verbose also prints diffs of would-apply steps.
	Verbose bool
}

func (o PlainObserver) StepStarted(resource.Descriptor, int, int) {}

func (o PlainObserver) StepFinished(res model.StepResult, index, total int) {
	fmt.Fprintf(o.Out, "[%d/%d] %-11s %s[%s]", index+1, total, res.Status, res.Kind, res.StepID)
	if msg := strings.TrimSpace(res.Message); msg != "" {
		fmt.Fprintf(o.Out, ": %s", msg)
	}
	fmt.Fprintln(o.Out)
	if o.Verbose && res.Diff != "" {
		for _, line := range strings.Split(strings.TrimRight(res.Diff, "\n"), "\n") {
			fmt.Fprintf(o.Out, "    %s\n", line)
		}
	}
}

// RenderReport writes the closing summary of a run.
func RenderReport(w io.Writer, report *model.RunReport) {
	if report == nil {
		return
	}
	counts := report.Counts()
	mode := "converged"
	if report.DryRun {
		mode = "planned"
	}
	fmt.Fprintf(w, "%s %s in %s: %d applied, %d would apply, %d would run, %d skipped, %d failed\n",
		mode, report.Recipe, report.Duration().Round(1e6),
		counts[model.StatusApplied], counts[model.StatusWouldApply], counts[model.StatusWouldRun],
		counts[model.StatusSkipped], counts[model.StatusFailed])

	if failed, ok := report.Failed(); ok {
		fmt.Fprintf(w, "failed step %s[%s]: %v\n", failed.Kind, failed.StepID, failed.Error)
	} else if report.Err != nil {
		fmt.Fprintf(w, "run halted: %v\n", report.Err)
	}
}
