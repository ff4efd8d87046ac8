package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/term"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/resource"
)

// Observer mirrors the engine's progress callbacks.
type Observer interface {
	StepStarted(desc resource.Descriptor, index, total int)
	StepFinished(result model.StepResult, index, total int)
}

// Runner executes the plan, reporting progress to obs.
type Runner func(ctx context.Context, obs Observer) (*model.RunReport, error)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

type programObserver struct {
	p *tea.Program
}

func (o programObserver) StepStarted(desc resource.Descriptor, index, _ int) {
	o.p.Send(StepStartMsg{Index: index, ID: desc.Identity})
}

func (o programObserver) StepFinished(result model.StepResult, index, _ int) {
	o.p.Send(StepCompleteMsg{Index: index, Result: result})
}

// RunInteractive drives run behind the progress UI. Ctrl-C cancels the
// context handed to run; the report is returned once run has stopped.
func RunInteractive(ctx context.Context, plan *resource.Plan, dryRun bool, out io.Writer, run Runner) (*model.RunReport, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(plan, dryRun), tea.WithOutput(out), tea.WithContext(ctx))

	type outcome struct {
		report *model.RunReport
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		report, err := run(ctx, programObserver{p: p})
		p.Send(RunDoneMsg{Report: report})
		done <- outcome{report: report, err: err}
	}()

	final, uiErr := p.Run()
	if m, ok := final.(Model); !ok || m.Cancelled() || uiErr != nil {
		cancel()
	}
	res := <-done
	if res.err == nil && uiErr != nil && ctx.Err() == nil {
		return res.report, fmt.Errorf("progress display: %w", uiErr)
	}
	return res.report, res.err
}
