// Package appctx assembles the shared dependency graph every cmd/scheduler
// subcommand needs — database, broker, registry, hot loader, invoker, beat
// scheduler, CDC client — the same role the teacher's cmd/task-manager and
// cmd/task-worker main.go functions play inline, factored out here because
// this module's single binary exposes many subcommands that each need a
// different subset of the graph.
package appctx

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"pluginsched/internal/beat"
	"pluginsched/internal/broker"
	"pluginsched/internal/cdc"
	"pluginsched/internal/cdc/consumer"
	"pluginsched/internal/config"
	"pluginsched/internal/hotload"
	"pluginsched/internal/invoker"
	"pluginsched/internal/registry"
	"pluginsched/internal/results"
	"pluginsched/internal/store"
	"pluginsched/pkg/dbkit"
)

// Context holds the fully wired dependency graph for one process lifetime.
// Subcommands pull only what they need off it; nothing here starts a
// background goroutine by itself — that is each subcommand's job.
type Context struct {
	Config *config.Config
	Log    zerolog.Logger

	Store    store.Store
	Broker   broker.Gateway
	Registry registry.Registry
	HotLoad  hotload.Loader
	Invoker  invoker.Invoker
	CDC      cdc.Client
	Consumer *consumer.Manager
	Results  results.Store
}

// New loads configuration, opens the database, and wires every component
// above it. The broker's Kafka writer and the CDC canal connection are both
// lazy/non-blocking to construct, so New never blocks on network I/O; Run
// loops (beat.Run, cdc.Run) are what actually dial out.
func New() (*Context, error) {
	log := newLogger()

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := dbkit.Open(cfg.DatabaseType, cfg.DatabaseURL, log)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := dbkit.AutoMigrate(db, &store.Task{}, &results.Record{}); err != nil {
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	taskStore := store.New(db)
	resultsStore := results.NewStore(db)

	brokerGateway := broker.NewKafka(broker.SplitBrokers(cfg.BrokerURL), cfg.PluginTopic, log)

	reg := registry.New(cfg.PluginsDir, cfg.PluginEnvsDir, log)
	if err := reg.Scan(); err != nil {
		return nil, fmt.Errorf("scan plugin registry: %w", err)
	}

	hotLoader := hotload.New(cfg.HotReloadDebounce, log)
	for _, entry := range reg.List() {
		if err := hotLoader.Watch(entry.Name, entry.Dir); err != nil {
			log.Warn().Err(err).Str("plugin", entry.Name).Msg("appctx: failed to watch plugin directory")
		}
	}

	inv := invoker.New(reg, hotLoader, runtimeBin(), log)

	cdcClient := cdc.New(cdc.Config{
		Host:        cfg.CdcHost,
		Port:        cfg.CdcPort,
		Destination: cfg.CdcDestination,
		BatchSize:   cfg.CdcBatchSize,
	}, cdc.NewCanalStreamerFactory(cdc.Config{
		Host:        cfg.CdcHost,
		Port:        cfg.CdcPort,
		Destination: cfg.CdcDestination,
		BatchSize:   cfg.CdcBatchSize,
	}, log), log)

	consumerMgr := consumer.NewManager(log)
	registerBuiltinConsumers(consumerMgr, brokerGateway)

	return &Context{
		Config:   cfg,
		Log:      log,
		Store:    taskStore,
		Broker:   brokerGateway,
		Registry: reg,
		HotLoad:  hotLoader,
		Invoker:  inv,
		CDC:      cdcClient,
		Consumer: consumerMgr,
		Results:  resultsStore,
	}, nil
}

// NewResultsService builds C7's sibling component: a consumer of the result
// topic that persists worker-reported outcomes into Results, grounded on the
// teacher's ResultService. This is started by the results-consumer
// subcommand rather than by every process, since only one consumer group
// member is needed to keep the submissions table current.
func (c *Context) NewResultsService() *results.Service {
	return results.NewService(broker.SplitBrokers(c.Config.ResultURL), c.Config.ResultTopic, c.Config.ConsumerGroupID, c.Results, c.Log)
}

// registerBuiltinConsumers code-registers the CDC consumer set, per spec.md
// §4.7/§9's Non-goal that filters are NOT admin-editable at runtime.
// Grounded on original_source/consumers/example_consumer.py's
// ExampleConsumer, which wires one trigger_plugin call per table by hand;
// generalized here to data-driven consumer.TriggerSpec values.
func registerBuiltinConsumers(mgr *consumer.Manager, br broker.Gateway) {
	mgr.Register(consumer.NewTriggerConsumer(consumer.TriggerSpec{
		Name:     "user_welcome_email",
		Plugin:   "email_service",
		Priority: 0,
		Filters: []consumer.Filter{
			{Database: "app", Table: "users", AllowedEventTypes: []cdc.EventType{cdc.EventInsert}},
		},
	}, br))

	mgr.Register(consumer.NewTriggerConsumer(consumer.TriggerSpec{
		Name:     "user_data_sync",
		Plugin:   "data_processor",
		Priority: 5,
		Filters: []consumer.Filter{
			{Database: "app", Table: "users", AllowedEventTypes: []cdc.EventType{cdc.EventUpdate}},
		},
	}, br))

	mgr.Register(consumer.NewTriggerConsumer(consumer.TriggerSpec{
		Name:     "new_order_processor",
		Plugin:   "order_processor",
		Priority: 5,
		Filters: []consumer.Filter{
			{Database: "app", Table: "orders", AllowedEventTypes: []cdc.EventType{cdc.EventInsert}},
		},
	}, br))
}

// NewBeat constructs C6 over this context's store and broker.
func (c *Context) NewBeat() (*beat.Scheduler, error) {
	loc, err := schedulerLocation(c.Config.SchedulerTimezone)
	if err != nil {
		return nil, err
	}
	return beat.New(c.Store, c.Broker, beat.Config{
		MaxLoopInterval:   c.Config.MaxLoopInterval,
		ReenableSoftReset: c.Config.ReenableSoftReset,
		ReenableHardReset: c.Config.ReenableHardReset,
		Location:          loc,
	}, c.Log), nil
}

// Close releases every component that owns a live connection or background
// goroutine: the broker's Kafka writer and the hot loader's fsnotify
// watchers. The database connection pool and CDC client are left to their
// own Run-loop-scoped lifecycles.
func (c *Context) Close() {
	if err := c.Broker.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("appctx: error closing broker")
	}
	if err := c.HotLoad.Close(); err != nil {
		c.Log.Warn().Err(err).Msg("appctx: error closing hot loader")
	}
}

func newLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
}

func runtimeBin() string {
	if bin := os.Getenv("PLUGINSCHED_RUNTIME_BIN"); bin != "" {
		return bin
	}
	return "python3"
}
