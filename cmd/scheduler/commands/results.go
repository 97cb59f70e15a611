package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
)

var resultsConsumerCmd = &cobra.Command{
	Use:   "results-consumer",
	Short: "Consume worker-reported submission outcomes and persist them",
	Long: `results-consumer reads the result topic workers publish to after
executing a plugin and writes each outcome into the submissions table,
grounded on the teacher's task-manager ResultService. Run exactly one of
these per deployment; it is what gives "status <id>" a real answer once a
submission has outlived the broker process that accepted it.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		svc := app.NewResultsService()
		app.Log.Info().Str("topic", app.Config.ResultTopic).Msg("results-consumer: starting")

		if err := svc.Run(ctx); err != nil {
			return Runtime(err)
		}
		fmt.Println("results-consumer: stopped")
		return nil
	},
}
