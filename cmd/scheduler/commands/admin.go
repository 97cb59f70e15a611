package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"pluginsched/internal/appctx"
)

var listActiveCmd = &cobra.Command{
	Use:   "list-active",
	Short: "List submission IDs the broker currently considers in flight",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		for _, id := range app.Broker.InspectActive() {
			fmt.Println(id)
		}
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <id>",
	Short: "Show a submission's lifecycle status",
	Long: `status answers from whichever source has an opinion: the broker's
in-memory state if this process accepted the submission, otherwise the
persisted submission_results table a results-consumer process wrote to —
the only way "status" can answer across process boundaries, since the
broker's Gateway.Status is scoped to one process's memory.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if status, ok := app.Broker.Status(args[0]); ok {
			fmt.Println(status)
			return nil
		}

		rec, err := app.Results.Get(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return Runtime(fmt.Errorf("unknown submission %s", args[0]))
			}
			return Runtime(err)
		}
		fmt.Println(rec.Status)
		return nil
	},
}

var cancelTerminate bool

var cancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Revoke one submission",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if err := app.Broker.Revoke(args[0], cancelTerminate); err != nil {
			return Runtime(err)
		}
		fmt.Printf("revoked %s\n", args[0])
		return nil
	},
}

var cancelPluginCmd = &cobra.Command{
	Use:   "cancel-plugin <name>",
	Short: "Revoke every active submission for a plugin",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if err := app.Broker.RevokeByPlugin(args[0], cancelTerminate); err != nil {
			return Runtime(err)
		}
		fmt.Printf("revoked all submissions for %s\n", args[0])
		return nil
	},
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database and plugin registry reachability",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		if _, err := app.Store.ListEnabled(cmd.Context()); err != nil {
			return Runtime(fmt.Errorf("store unavailable: %w", err))
		}
		fmt.Printf("ok: %d plugins discovered\n", len(app.Registry.List()))
		return nil
	},
}

func init() {
	cancelCmd.Flags().BoolVar(&cancelTerminate, "terminate", false, "request the worker terminate an in-flight execution")
	cancelPluginCmd.Flags().BoolVar(&cancelTerminate, "terminate", false, "request the worker terminate in-flight executions")
}
