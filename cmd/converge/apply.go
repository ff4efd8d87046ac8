package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/datashades/converge/internal/model"
	"github.com/datashades/converge/internal/recipes"
)

func newApplyCmd(flags *rootFlags, e *env) *cobra.Command {
	return &cobra.Command{
		Use:       "apply <recipe>",
		Short:     "Converge the host with a recipe",
		Args:      cobra.ExactArgs(1),
		ValidArgs: recipes.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runRecipe(cmd, flags, e, args[0], flags.dryRun)
			if err != nil {
				return err
			}
			if code := report.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newPlanCmd(flags *rootFlags, e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <recipe>",
		Short: "Show what apply would change without touching the host",
		Long: `Plan evaluates every guard and resource of the recipe and reports the
steps that apply would act on. Nothing on the host is modified.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: recipes.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runRecipe(cmd, flags, e, args[0], true)
			if err != nil {
				return err
			}
			if code := report.ExitCode(); code != 0 {
				return &exitError{code: code}
			}
			return nil
		},
	}
}

func newVerifyCmd(flags *rootFlags, e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <recipe>",
		Short: "Check whether the host has converged",
		Long: `Verify performs the same read-only evaluation as plan. It exits 0 when
every step is already converged, 1 when anything would change and 2 when
the evaluation itself failed.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: recipes.Names(),
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := runRecipe(cmd, flags, e, args[0], true)
			if err != nil {
				return &exitError{code: 2, err: err}
			}
			if report.ExitCode() != 0 {
				return &exitError{code: 2}
			}
			if report.Drifted() {
				counts := report.Counts()
				return &exitError{code: 1, err: fmt.Errorf("%s has drifted: %d step(s) would change", report.Recipe, counts[model.StatusWouldApply])}
			}
			return nil
		},
	}
}
