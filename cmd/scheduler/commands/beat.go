package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
)

var beatCmd = &cobra.Command{
	Use:   "beat",
	Short: "Start the scheduling loop",
	Long: `beat runs the singleton reconcile-then-dispatch loop: it reads the
enabled task table on a fixed interval, rebuilds the in-memory schedule only
when something has actually changed, and submits due tasks to the broker.
Running more than one beat against the same database is undefined
behavior — operators must enforce singletonship externally.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		sched, err := app.NewBeat()
		if err != nil {
			return Runtime(err)
		}

		app.Log.Info().Dur("max_loop_interval", app.Config.MaxLoopInterval).Msg("beat: starting")
		sched.Run(ctx) // returns once ctx is canceled by the signal handler above

		fmt.Println("beat: stopped")
		return nil
	},
}
