package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"

	"pluginsched/internal/appctx"
	"pluginsched/internal/broker"
	"pluginsched/internal/invoker"
	"pluginsched/internal/results"
)

var (
	workerQueues      string
	workerConcurrency int
)

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Start a worker pool that executes plugins",
	Long: `worker consumes plugin task envelopes from the broker's queue(s) and
executes each one through the plugin invoker, grounded on the teacher's
cmd/task-worker consumer loop generalized from a fixed executor registry to
the dynamic per-manifest plugin invoker.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		app, err := appctx.New()
		if err != nil {
			return Runtime(err)
		}
		defer app.Close()

		queues := []string{app.Config.PluginTopic}
		if workerQueues != "" {
			queues = broker.SplitBrokers(workerQueues)
		}
		if workerConcurrency <= 0 {
			workerConcurrency = 1
		}

		housekeeper, err := startHousekeeping(app)
		if err != nil {
			return Runtime(err)
		}
		defer func() { _ = housekeeper.Shutdown() }()

		resultWriter := &kafka.Writer{
			Addr:         kafka.TCP(broker.SplitBrokers(app.Config.ResultURL)...),
			Topic:        app.Config.ResultTopic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		}
		defer resultWriter.Close()

		app.Log.Info().Strs("queues", queues).Int("concurrency", workerConcurrency).Msg("worker: starting")

		done := make(chan struct{})
		for _, queue := range queues {
			go runQueueConsumer(ctx, app, resultWriter, queue, workerConcurrency, done)
		}

		<-ctx.Done()
		for range queues {
			<-done
		}
		fmt.Println("worker: stopped")
		return nil
	},
}

func init() {
	workerCmd.Flags().StringVar(&workerQueues, "queues", "", "comma-separated list of broker queues to consume (default: plugin_topic from config)")
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 1, "number of concurrent plugin executions per queue")
}

// runQueueConsumer reads one broker queue and fans each message out to a
// bounded worker pool, grounded on the teacher's cmd/task-worker main.go
// ReadMessage loop, generalized to N concurrent handlers instead of one
// goroutine-per-message with no backpressure.
func runQueueConsumer(ctx context.Context, app *appctx.Context, resultWriter *kafka.Writer, queue string, concurrency int, done chan<- struct{}) {
	defer func() { done <- struct{}{} }()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        broker.SplitBrokers(app.Config.BrokerURL),
		GroupID:        app.Config.ConsumerGroupID,
		Topic:          queue,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	defer reader.Close()

	sem := make(chan struct{}, concurrency)
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return
			}
			app.Log.Warn().Err(err).Str("queue", queue).Msg("worker: read error, retrying")
			continue
		}

		sem <- struct{}{}
		go func(msg kafka.Message) {
			defer func() { <-sem }()
			handleEnvelope(ctx, app, resultWriter, msg.Value)
		}(m)
	}
}

// handleEnvelope executes one dispatched plugin and reports its outcome on
// the result topic, grounded on the teacher's cmd/task-worker main.go
// execute-then-publish-completion-event pattern.
func handleEnvelope(ctx context.Context, app *appctx.Context, resultWriter *kafka.Writer, raw []byte) {
	var env broker.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		app.Log.Error().Err(err).Msg("worker: malformed envelope, dropping")
		return
	}
	if app.Broker.IsRevoked(env.SubmissionID) {
		app.Log.Info().Str("submission_id", env.SubmissionID).Msg("worker: skipping revoked submission")
		return
	}
	if len(env.Args) == 0 {
		app.Log.Error().Str("submission_id", env.SubmissionID).Msg("worker: envelope missing plugin name")
		return
	}
	pluginName := env.Args[0]

	timeout := time.Duration(env.TimeLimit) * time.Second
	result, err := app.Invoker.Execute(ctx, pluginName, env.Kwargs, timeout)
	payload := results.Payload{SubmissionID: env.SubmissionID, PluginName: pluginName}
	if err != nil {
		app.Log.Error().Err(err).Str("plugin", pluginName).Str("submission_id", env.SubmissionID).Msg("worker: execution failed")
		payload.Status = string(invoker.StatusError)
		payload.Error = err.Error()
	} else {
		app.Log.Info().Str("plugin", pluginName).Str("submission_id", env.SubmissionID).Str("status", string(result.Status)).Msg("worker: execution complete")
		payload.Status = string(result.Status)
		if result.Error != "" {
			payload.Error = result.Error
		}
		if result.Result != nil {
			if encoded, err := json.Marshal(result.Result); err == nil {
				payload.Result = string(encoded)
			}
		}
	}
	publishResult(ctx, app, resultWriter, payload)
}

func publishResult(ctx context.Context, app *appctx.Context, resultWriter *kafka.Writer, payload results.Payload) {
	body, err := json.Marshal(payload)
	if err != nil {
		app.Log.Error().Err(err).Msg("worker: failed to marshal result payload")
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := resultWriter.WriteMessages(writeCtx, kafka.Message{Key: []byte(payload.SubmissionID), Value: body}); err != nil {
		app.Log.Warn().Err(err).Str("submission_id", payload.SubmissionID).Msg("worker: failed to publish result")
	}
}

// startHousekeeping runs a low-frequency background job — a once-a-minute
// debug log of the broker's in-flight submission count — via
// gocron/v2 rather than a hand-rolled ticker, since this is exactly the
// "scheduled recurring job distinct from the task schedule" gocron is built
// for in the rest of the ecosystem this module's dependencies come from.
func startHousekeeping(app *appctx.Context) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create housekeeping scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			app.Log.Debug().Int("active_submissions", len(app.Broker.InspectActive())).Msg("worker: housekeeping tick")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("schedule housekeeping job: %w", err)
	}
	s.Start()
	return s, nil
}
