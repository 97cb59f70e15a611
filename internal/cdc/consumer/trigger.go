package consumer

import (
	"context"
	"fmt"

	"pluginsched/internal/broker"
	"pluginsched/internal/cdc"
)

// TriggerSpec is one code-registered consumer definition: on a matching row
// event, submit plugin Plugin via the broker. Grounded on
// original_source/consumers/example_consumer.py's ExampleConsumer, which
// hand-writes one trigger_plugin call per table; generalized here into a
// single reusable Consumer type driven by data instead of one Go type per
// table, since this spec's filters are code-registered but need not be
// one-struct-per-table to stay so.
type TriggerSpec struct {
	Name     string
	Filters  []Filter
	Plugin   string
	Priority int
	// BuildParameters maps a matched row event to the plugin's keyword
	// parameters. A nil func passes the row's Data map through unchanged,
	// tagged with the triggering event's metadata.
	BuildParameters func(ev cdc.RowEvent) map[string]interface{}
}

// pluginTriggerConsumer is the Consumer implementation of spec.md §4.7's
// "Consumers express work by calling trigger_plugin ... a thin wrapper over
// C2" requirement.
type pluginTriggerConsumer struct {
	spec   TriggerSpec
	broker broker.Gateway
}

// NewTriggerConsumer builds a Consumer that submits spec.Plugin through br
// whenever a row event matches one of spec.Filters.
func NewTriggerConsumer(spec TriggerSpec, br broker.Gateway) Consumer {
	return &pluginTriggerConsumer{spec: spec, broker: br}
}

func (c *pluginTriggerConsumer) Name() string     { return c.spec.Name }
func (c *pluginTriggerConsumer) Filters() []Filter { return c.spec.Filters }

func (c *pluginTriggerConsumer) ProcessEvent(ev cdc.RowEvent) error {
	params := c.buildParameters(ev)
	_, err := c.broker.Submit(context.Background(), c.spec.Plugin, params, broker.SubmitOptions{
		Priority: c.spec.Priority,
	})
	if err != nil {
		return fmt.Errorf("trigger_plugin %s from consumer %s: %w", c.spec.Plugin, c.spec.Name, err)
	}
	return nil
}

func (c *pluginTriggerConsumer) buildParameters(ev cdc.RowEvent) map[string]interface{} {
	if c.spec.BuildParameters != nil {
		return c.spec.BuildParameters(ev)
	}
	params := map[string]interface{}{
		"database":   ev.Database,
		"table":      ev.Table,
		"event_type": string(ev.EventType),
	}
	for k, v := range ev.Data {
		params[k] = v
	}
	return params
}
