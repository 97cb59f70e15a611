// Package commands implements cmd/scheduler's CLI surface, grounded on
// teranos-QNTX's cmd/qntx tree (the only example repo with a real
// multi-command cobra CLI) rather than the teacher, which exposes its
// operations over a hertz HTTP server instead of a command line.
package commands

import (
	"github.com/spf13/cobra"
)

// RootCmd is the scheduler binary's entrypoint command.
var RootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Database-driven task scheduler for the plugin ecosystem",
	Long: `scheduler runs the plugin task scheduling system: a singleton Beat
process that reconciles scheduled tasks against the database and submits due
ones to the broker, a pool of workers that execute plugins, and an optional
CDC consumer subsystem that reacts to row changes upstream.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	RootCmd.AddCommand(beatCmd)
	RootCmd.AddCommand(workerCmd)
	RootCmd.AddCommand(cdcConsumerCmd)
	RootCmd.AddCommand(resultsConsumerCmd)
	RootCmd.AddCommand(listPluginsCmd)
	RootCmd.AddCommand(testPluginCmd)
	RootCmd.AddCommand(reloadCmd)
	RootCmd.AddCommand(triggerCmd)
	RootCmd.AddCommand(listActiveCmd)
	RootCmd.AddCommand(statusCmd)
	RootCmd.AddCommand(cancelCmd)
	RootCmd.AddCommand(cancelPluginCmd)
	RootCmd.AddCommand(addTaskCmd)
	RootCmd.AddCommand(disableTaskCmd)
	RootCmd.AddCommand(enableTaskCmd)
	RootCmd.AddCommand(removeTaskCmd)
	RootCmd.AddCommand(healthCmd)
}

// Execute runs the root command. Its error, if any, is already classified
// as a usage error or a Runtime error by the subcommand that produced it.
func Execute() error {
	return RootCmd.Execute()
}
