package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
	"pluginsched/internal/broker"
)

var listPluginsCmd = &cobra.Command{
	Use:   "list-plugins",
	Short: "List every discovered plugin and whether it's enabled",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		for _, entry := range app.Registry.List() {
			fmt.Printf("%s\tv%s\tenabled=%t\t%s\n", entry.Manifest.Name, entry.Manifest.Version, entry.Manifest.Enabled, entry.Manifest.Description)
		}
		return nil
	},
}

var testPluginCmd = &cobra.Command{
	Use:   "test-plugin <name> [--k=v …]",
	Short: "Invoke a plugin once and print its structured result",
	Long: `test-plugin runs a plugin exactly as a worker would — resolve,
reload-if-dirty, validate parameters, execute as a subprocess — without
going through the broker, so a plugin author can see the effect of a source
edit immediately (spec.md §8 scenario 4: hot reload).`,
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, params, err := parseNameAndParams(args)
		if err != nil {
			return err // usage error, exit 1
		}

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		result, err := app.Invoker.Execute(cmd.Context(), name, params, 0)
		if err != nil {
			return Runtime(err)
		}
		return printJSON(result)
	},
}

var reloadCmd = &cobra.Command{
	Use:   "reload <name>",
	Short: "Force the registry to re-read one plugin's manifest and source from disk",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if err := app.Registry.Reload(args[0]); err != nil {
			return Runtime(err)
		}
		fmt.Printf("reloaded %s\n", args[0])
		return nil
	},
}

var triggerCmd = &cobra.Command{
	Use:                "trigger <name> [--k=v …]",
	Short:              "Submit a plugin for execution through the broker, bypassing the schedule",
	DisableFlagParsing: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, params, err := parseNameAndParams(args)
		if err != nil {
			return err
		}

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		submissionID, err := app.Broker.Submit(cmd.Context(), name, params, broker.SubmitOptions{Queue: app.Config.PluginTopic})
		if err != nil {
			return Runtime(err)
		}
		fmt.Println(submissionID)
		return nil
	},
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return Runtime(fmt.Errorf("encode result: %w", err))
	}
	fmt.Println(string(out))
	return nil
}
