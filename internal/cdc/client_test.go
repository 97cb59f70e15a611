package cdc

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeStreamer struct {
	connectErr   error
	streamErr    error
	connectCalls *int32
	events       []RowEvent
}

func (f *fakeStreamer) Connect() error {
	atomic.AddInt32(f.connectCalls, 1)
	return f.connectErr
}

func (f *fakeStreamer) StreamRows(ctx context.Context, sink func(RowEvent)) error {
	for _, ev := range f.events {
		sink(ev)
	}
	if f.streamErr != nil {
		return f.streamErr
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeStreamer) Close() {}

func TestRunDeliversEventsToSink(t *testing.T) {
	var calls int32
	fs := &fakeStreamer{
		connectCalls: &calls,
		events:       []RowEvent{{Database: "db", Table: "t", EventType: EventInsert}},
	}

	c := New(Config{Host: "localhost", Port: 11111}, func() streamer { return fs }, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var received []RowEvent
	_ = c.Run(ctx, func(ev RowEvent) { received = append(received, ev) })

	assert.Len(t, received, 1)
	assert.Equal(t, EventInsert, received[0].EventType)
}

func TestRunRetriesOnConnectFailure(t *testing.T) {
	var calls int32
	fs := &fakeStreamer{connectCalls: &calls, connectErr: assertErrCDC}

	c := New(Config{}, func() streamer { return fs }, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_ = c.Run(ctx, func(RowEvent) {})

	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(2), "must retry connect after failure")
}

type cdcError struct{}

func (*cdcError) Error() string { return "connect failed" }

var assertErrCDC = &cdcError{}
