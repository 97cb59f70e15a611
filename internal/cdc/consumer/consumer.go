// Package consumer implements C8, the Consumer Manager of spec.md §4.7:
// holds a set of registered consumers, each filtering row events by
// (database, table, allowed_event_types), and fans every matching event
// out to each consumer independently, with per-consumer error isolation.
// Grounded on
// original_source/consumers/consumer_manager.py's ConsumerManager,
// generalized from its single-threaded registry/dispatch loop to Go's
// interface-based consumer contract.
package consumer

import (
	"sync"

	"github.com/rs/zerolog"

	"pluginsched/internal/cdc"
)

// Filter is one (database, table, allowed_event_types) tuple a consumer
// registers interest in, per spec.md §4.7.
type Filter struct {
	Database          string
	Table              string
	AllowedEventTypes []cdc.EventType
}

func (f Filter) matches(ev cdc.RowEvent) bool {
	if f.Database != "" && f.Database != ev.Database {
		return false
	}
	if f.Table != "" && f.Table != ev.Table {
		return false
	}
	if len(f.AllowedEventTypes) == 0 {
		return true
	}
	for _, t := range f.AllowedEventTypes {
		if t == ev.EventType {
			return true
		}
	}
	return false
}

// Consumer is one registered row-event subscriber.
type Consumer interface {
	Name() string
	Filters() []Filter
	ProcessEvent(ev cdc.RowEvent) error
}

// Manager is C8's operation set.
type Manager struct {
	log zerolog.Logger

	mu        sync.RWMutex
	consumers map[string]Consumer
	disabled  map[string]bool
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:       log,
		consumers: map[string]Consumer{},
		disabled:  map[string]bool{},
	}
}

func (m *Manager) Register(c Consumer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consumers[c.Name()] = c
	m.log.Info().Str("consumer", c.Name()).Msg("cdc consumer registered")
}

func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.consumers, name)
	delete(m.disabled, name)
}

func (m *Manager) Enable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.disabled, name)
}

func (m *Manager) Disable(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disabled[name] = true
}

func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.consumers))
	for name := range m.consumers {
		out = append(out, name)
	}
	return out
}

// Dispatch fans one row event out to every enabled consumer whose filters
// match it. Each consumer's ProcessEvent is isolated: a panic or error
// from one consumer is logged and never stops dispatch to the others,
// per original_source/consumer_manager.py's
// _handle_change_event try/except-per-consumer loop.
func (m *Manager) Dispatch(ev cdc.RowEvent) {
	m.mu.RLock()
	targets := make([]Consumer, 0, len(m.consumers))
	for name, c := range m.consumers {
		if m.disabled[name] {
			continue
		}
		if matchesAny(c.Filters(), ev) {
			targets = append(targets, c)
		}
	}
	m.mu.RUnlock()

	for _, c := range targets {
		m.dispatchOne(c, ev)
	}
}

func (m *Manager) dispatchOne(c Consumer, ev cdc.RowEvent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error().Interface("panic", r).Str("consumer", c.Name()).Msg("cdc consumer panicked")
		}
	}()
	if err := c.ProcessEvent(ev); err != nil {
		m.log.Error().Err(err).Str("consumer", c.Name()).Msg("cdc consumer failed to process event")
	}
}

func matchesAny(filters []Filter, ev cdc.RowEvent) bool {
	if len(filters) == 0 {
		return false
	}
	for _, f := range filters {
		if f.matches(ev) {
			return true
		}
	}
	return false
}
