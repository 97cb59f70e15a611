package consumer

import (
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"pluginsched/internal/cdc"
)

type fakeConsumer struct {
	name    string
	filters []Filter
	mu      sync.Mutex
	seen    []cdc.RowEvent
	err     error
	panics  bool
}

func (f *fakeConsumer) Name() string    { return f.name }
func (f *fakeConsumer) Filters() []Filter { return f.filters }

func (f *fakeConsumer) ProcessEvent(ev cdc.RowEvent) error {
	if f.panics {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, ev)
	return f.err
}

func (f *fakeConsumer) calls() []cdc.RowEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]cdc.RowEvent{}, f.seen...)
}

func TestDispatchOnlyReachesMatchingConsumer(t *testing.T) {
	m := NewManager(zerolog.Nop())

	matching := &fakeConsumer{name: "matching", filters: []Filter{
		{Database: "db", Table: "users", AllowedEventTypes: []cdc.EventType{cdc.EventInsert}},
	}}
	nonMatching := &fakeConsumer{name: "non-matching", filters: []Filter{
		{Database: "db", Table: "orders", AllowedEventTypes: []cdc.EventType{cdc.EventInsert}},
	}}
	m.Register(matching)
	m.Register(nonMatching)

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "users", EventType: cdc.EventInsert})

	assert.Len(t, matching.calls(), 1)
	assert.Len(t, nonMatching.calls(), 0)
}

func TestDispatchFiltersByEventType(t *testing.T) {
	m := NewManager(zerolog.Nop())
	c := &fakeConsumer{name: "c", filters: []Filter{
		{Database: "db", Table: "users", AllowedEventTypes: []cdc.EventType{cdc.EventInsert}},
	}}
	m.Register(c)

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "users", EventType: cdc.EventUpdate})
	assert.Len(t, c.calls(), 0)

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "users", EventType: cdc.EventInsert})
	assert.Len(t, c.calls(), 1)
}

func TestDisabledConsumerExcludedFromDispatch(t *testing.T) {
	m := NewManager(zerolog.Nop())
	c := &fakeConsumer{name: "c", filters: []Filter{{Database: "db", Table: "t"}}}
	m.Register(c)
	m.Disable("c")

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})
	assert.Len(t, c.calls(), 0)

	m.Enable("c")
	m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})
	assert.Len(t, c.calls(), 1)
}

func TestUnregisterStopsDelivery(t *testing.T) {
	m := NewManager(zerolog.Nop())
	c := &fakeConsumer{name: "c", filters: []Filter{{Database: "db", Table: "t"}}}
	m.Register(c)
	m.Unregister("c")

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})
	assert.Len(t, c.calls(), 0)
	assert.NotContains(t, m.List(), "c")
}

func TestConsumerErrorDoesNotBlockOtherConsumers(t *testing.T) {
	m := NewManager(zerolog.Nop())
	failing := &fakeConsumer{name: "failing", filters: []Filter{{Database: "db", Table: "t"}}, err: assertErrConsumer}
	ok := &fakeConsumer{name: "ok", filters: []Filter{{Database: "db", Table: "t"}}}
	m.Register(failing)
	m.Register(ok)

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})

	assert.Len(t, failing.calls(), 1)
	assert.Len(t, ok.calls(), 1)
}

func TestConsumerPanicDoesNotBlockOtherConsumers(t *testing.T) {
	m := NewManager(zerolog.Nop())
	panicking := &fakeConsumer{name: "panicking", filters: []Filter{{Database: "db", Table: "t"}}, panics: true}
	ok := &fakeConsumer{name: "ok", filters: []Filter{{Database: "db", Table: "t"}}}
	m.Register(panicking)
	m.Register(ok)

	assert.NotPanics(t, func() {
		m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})
	})

	assert.Len(t, ok.calls(), 1)
}

func TestFilterWithNoDatabaseOrTableMatchesAny(t *testing.T) {
	m := NewManager(zerolog.Nop())
	c := &fakeConsumer{name: "c", filters: []Filter{{}}}
	m.Register(c)

	m.Dispatch(cdc.RowEvent{Database: "anything", Table: "whatever", EventType: cdc.EventDelete})
	assert.Len(t, c.calls(), 1)
}

func TestConsumerWithNoFiltersNeverMatches(t *testing.T) {
	m := NewManager(zerolog.Nop())
	c := &fakeConsumer{name: "c", filters: nil}
	m.Register(c)

	m.Dispatch(cdc.RowEvent{Database: "db", Table: "t", EventType: cdc.EventInsert})
	assert.Len(t, c.calls(), 0)
}

type consumerError struct{}

func (*consumerError) Error() string { return "consumer failed" }

var assertErrConsumer = &consumerError{}
