package main

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/datashades/converge/internal/plugins/internalexec"
)

const (
	defaultAttributesPath = "/etc/converge/attributes.yml"
	defaultInventoryPath  = "/etc/converge/inventory.yml"
)

type rootFlags struct {
	attributes string
	inventory  string
	verbose    bool
	jsonLogs   bool
	dryRun     bool
}

// env holds what commands take from the process so tests can swap it.
type env struct {
	runner      internalexec.Runner
	interactive func(w io.Writer) bool
}

func defaultEnv() *env {
	return &env{
		runner:      internalexec.OSRunner{},
		interactive: isTerminal,
	}
}

func newRootCmd(e *env) *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "converge",
		Short:         "Converge a CKAN/Drupal node to the state its inventory describes",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.attributes, "attributes", "a", defaultAttributesPath, "Node attributes YAML")
	cmd.PersistentFlags().StringVarP(&flags.inventory, "inventory", "i", defaultInventoryPath, "Inventory document (YAML or JSON)")
	cmd.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "Enable debug logging and show diffs")
	cmd.PersistentFlags().BoolVar(&flags.jsonLogs, "json-logs", false, "Write logs as JSON lines")
	cmd.PersistentFlags().BoolVar(&flags.dryRun, "dry-run", false, "Evaluate guards and resources without changing the host")

	cmd.AddCommand(
		newApplyCmd(flags, e),
		newPlanCmd(flags, e),
		newVerifyCmd(flags, e),
		newRecipesCmd(),
		newHistoryCmd(flags),
		newWatchCmd(flags, e),
		newVersionCmd(),
	)
	return cmd
}
