package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
	"pluginsched/internal/cdc"
)

var cdcConsumerCmd = &cobra.Command{
	Use:   "cdc-consumer",
	Short: "Start the CDC client and dispatch row events to registered consumers",
	Long: `cdc-consumer connects to the configured MySQL binlog endpoint and
fans every row-level change out to the registered consumer set (C8), which
triggers plugins via the broker in reaction to upstream mutations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		app.Log.Info().Str("host", app.Config.CdcHost).Int("port", app.Config.CdcPort).Msg("cdc-consumer: starting")

		err = app.CDC.Run(ctx, func(ev cdc.RowEvent) {
			app.Consumer.Dispatch(ev)
		})
		if err != nil && ctx.Err() == nil {
			return Runtime(err)
		}

		fmt.Println("cdc-consumer: stopped")
		return nil
	},
}
