package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/datashades/converge/internal/config"
	"github.com/datashades/converge/internal/journal"
)

type historyOptions struct {
	limit  int
	recipe string
	runID  string
}

func newHistoryCmd(flags *rootFlags) *cobra.Command {
	opts := historyOptions{}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs from the local journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			attrs, err := config.ParseAttributes(flags.attributes)
			if err != nil {
				return err
			}
			log, err := newLogger(flags, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}
			j, err := journal.Open(cmd.Context(), attrs.Settings.JournalPath, log)
			if err != nil {
				return err
			}
			defer j.Close()

			if opts.runID != "" {
				return showRun(cmd, j, opts.runID)
			}
			return listRuns(cmd, j, opts, time.Now())
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Number of runs to show")
	cmd.Flags().StringVar(&opts.recipe, "recipe", "", "Only show runs of this recipe")
	cmd.Flags().StringVar(&opts.runID, "run", "", "Show the steps of one run")
	return cmd
}

func listRuns(cmd *cobra.Command, j *journal.Journal, opts historyOptions, now time.Time) error {
	runs, err := j.Recent(cmd.Context(), opts.recipe, opts.limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no runs recorded")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tRECIPE\tSTARTED\tTOOK\tAPPLIED\tSKIPPED\tFAILED\tRESULT")
	for _, r := range runs {
		result := "ok"
		switch {
		case r.Error != "":
			result = r.Error
		case r.DryRun:
			result = fmt.Sprintf("dry run, %d would apply", r.WouldApply)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID, r.Recipe, humanize.RelTime(r.Started, now, "ago", "from now"),
			r.Duration().Round(time.Millisecond), r.Applied, r.Skipped, r.Failed, result)
	}
	return w.Flush()
}

func showRun(cmd *cobra.Command, j *journal.Journal, runID string) error {
	steps, err := j.Steps(cmd.Context(), runID)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "#\tSTATUS\tSTEP\tTOOK\tMESSAGE")
	for i, s := range steps {
		fmt.Fprintf(w, "%s\t%s\t%s[%s]\t%s\t%s\n",
			humanize.Ordinal(i+1), s.Status, s.Kind, s.StepID, s.Duration, s.Message)
	}
	return w.Flush()
}
