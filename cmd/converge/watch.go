package main

import (
	"context"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/datashades/converge/internal/recipes"
	"github.com/datashades/converge/internal/watch"
)

func newWatchCmd(flags *rootFlags, e *env) *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch <recipe>",
		Short: "Re-converge a recipe whenever the inventory or attributes change",
		Long: `Watch converges the recipe once, then again every time the inventory or
attributes file is rewritten. A triggered run that finds the host lock
held by another process is logged and dropped.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: recipes.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			// watch always renders plainly; the progress UI owns the terminal.
			plain := *e
			plain.interactive = func(io.Writer) bool { return false }

			log, err := newLogger(flags, cmd.ErrOrStderr(), false)
			if err != nil {
				return err
			}

			converge := func(ctx context.Context) error {
				sess, err := loadSession(ctx, flags, args[0], log)
				if err != nil {
					return err
				}
				if flags.verbose {
					sess.stream = cmd.ErrOrStderr()
				}
				_, err = sess.converge(ctx, &plain, cmd.OutOrStdout(), flags.dryRun, flags.verbose)
				return err
			}

			if err := converge(cmd.Context()); err != nil {
				log.Error(err, "initial run failed")
			}
			log.Info("watching " + flags.inventory + " and " + flags.attributes)
			return watch.Files(cmd.Context(), []string{flags.inventory, flags.attributes},
				watch.Options{Debounce: debounce, Logger: log}, converge)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period after a change before re-running")
	return cmd
}
