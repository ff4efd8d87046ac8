package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/datashades/converge/internal/config"
	"github.com/datashades/converge/internal/engine"
	"github.com/datashades/converge/internal/inventory"
	"github.com/datashades/converge/internal/journal"
	"github.com/datashades/converge/internal/logger"
	"github.com/datashades/converge/internal/metrics"
	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/plugins"
	"github.com/datashades/converge/internal/recipes"
	"github.com/datashades/converge/internal/resource"
	"github.com/datashades/converge/internal/tui"
)

// session is everything one recipe run needs, loaded fresh per run so
// watch mode picks up edited inputs.
type session struct {
	attrs *config.Attributes
	snap  inventory.Snapshot
	plan  *resource.Plan
	log   *logger.Logger

	// stream receives shell command output as it is produced.
	stream io.Writer
}

// newLogger builds the process logger. Info lines would tear the
// progress display, so quiet drops to warnings.
func newLogger(flags *rootFlags, w io.Writer, quiet bool) (*logger.Logger, error) {
	level := "info"
	switch {
	case flags.verbose:
		level = "debug"
	case quiet:
		level = "warn"
	}
	return logger.New(logger.Options{
		Level:         level,
		HumanReadable: !flags.jsonLogs,
		Writer:        w,
	})
}

func loadSession(ctx context.Context, flags *rootFlags, recipeName string, log *logger.Logger) (*session, error) {
	recipe, err := recipes.Lookup(recipeName)
	if err != nil {
		return nil, err
	}
	attrs, err := config.ParseAttributes(flags.attributes)
	if err != nil {
		return nil, err
	}
	resolver, err := inventory.LoadFile(flags.inventory)
	if err != nil {
		return nil, err
	}
	snap, err := inventory.Build(ctx, resolver, *attrs)
	if err != nil {
		return nil, err
	}
	plan, err := recipe.Build(snap)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", recipe.Name, err)
	}

	log.WithFields(map[string]any{
		"recipe":     recipe.Name,
		"host":       snap.Hostname(),
		"batch_node": snap.BatchNode(),
		"extensions": len(snap.Extensions()),
		"steps":      plan.Len(),
	}).Debug("plan built")

	return &session{attrs: attrs, snap: snap, plan: plan, log: log}, nil
}

// converge runs the session's plan and records the outcome in the
// journal and the metrics textfile. The report is returned even when
// the run halted.
func (s *session) converge(ctx context.Context, e *env, out io.Writer, dryRun, verbose bool) (*model.RunReport, error) {
	settings := s.attrs.Settings
	interactive := e.interactive(out)
	if interactive {
		s.stream = nil
	}

	registry, err := plugins.NewRegistry(plugins.Options{
		Runner:         e.runner,
		PackageManager: settings.PackageManager,
		Shell:          settings.Shell,
		ShellTimeout:   settings.ShellTimeout.Std(),
		Output:         s.stream,
	})
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()

	run := func(ctx context.Context, obs tui.Observer) (*model.RunReport, error) {
		eng, err := engine.New(engine.Options{
			Registry:  registry,
			Logger:    s.log,
			DryRun:    dryRun,
			LockPath:  settings.LockPath,
			Observers: []engine.Observer{recorder, obs},
		})
		if err != nil {
			return nil, err
		}
		return eng.Run(ctx, s.plan)
	}

	var report *model.RunReport
	var runErr error
	if interactive {
		report, runErr = tui.RunInteractive(ctx, s.plan, dryRun, out, run)
	} else {
		report, runErr = run(ctx, tui.PlainObserver{Out: out, Verbose: verbose})
		tui.RenderReport(out, report)
	}

	recorder.ObserveRun(report)
	if err := recorder.WriteTextfile(settings.MetricsTextfile); err != nil {
		s.log.Warn(err.Error())
	}
	s.record(ctx, report)
	return report, runErr
}

// record appends report to the journal. Journal problems never fail
// the run.
func (s *session) record(ctx context.Context, report *model.RunReport) {
	path := s.attrs.Settings.JournalPath
	if report == nil || path == "" {
		return
	}
	j, err := journal.Open(ctx, path, s.log)
	if err != nil {
		s.log.Warn(fmt.Sprintf("journal unavailable: %v", err))
		return
	}
	defer j.Close()
	if err := j.Record(context.WithoutCancel(ctx), report); err != nil {
		s.log.Warn(fmt.Sprintf("journal record: %v", err))
	}
}

func isTerminal(w io.Writer) bool {
	return tui.IsTerminal(w)
}

// runRecipe is the shared body of apply, plan and verify.
func runRecipe(cmd *cobra.Command, flags *rootFlags, e *env, recipeName string, dryRun bool) (*model.RunReport, error) {
	log, err := newLogger(flags, cmd.ErrOrStderr(), e.interactive(cmd.OutOrStdout()))
	if err != nil {
		return nil, err
	}
	sess, err := loadSession(cmd.Context(), flags, recipeName, log)
	if err != nil {
		return nil, err
	}
	if flags.verbose {
		sess.stream = cmd.ErrOrStderr()
	}
	return sess.converge(cmd.Context(), e, cmd.OutOrStdout(), dryRun, flags.verbose)
}

