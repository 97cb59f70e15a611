// Package cdc implements C7, the CDC Client of spec.md §4.7: connects to a
// MySQL binlog stream and yields a finite-until-disconnect sequence of row
// events, reconnecting with exponential backoff on failure.
//
// original_source/consumers/canal_client.py wraps the Java-Canal wire
// protocol via the canal-python client library. The idiomatic Go
// equivalent — and the real ecosystem library for this exact job — is
// github.com/go-mysql-org/go-mysql's canal subpackage, which speaks the
// MySQL replication protocol directly rather than proxying through a
// separate Canal server process. It is not present among the retrieved
// example repos, so it is named here as an out-of-pack dependency. This
// file wraps it behind the narrow interface below so the rest of the
// module depends only on RowEvent and Client, never on the canal package
// directly.
package cdc

import (
	"context"
	"math/rand"
	"time"

	"github.com/rs/zerolog"
)

// EventType enumerates the row-level mutation kinds spec.md §3 names.
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
)

// RowEvent is the ephemeral C7→C8 unit of spec.md §3. Data always carries
// the row's current column values (the only image INSERT/DELETE have).
// Before is populated only for EventUpdate, carrying the pre-change column
// values, matching the before/after pair original_source/consumers/
// canal_client.py's _parse_message builds for UPDATE rows — a consumer that
// only wants current state reads Data and ignores Before.
type RowEvent struct {
	Database  string
	Table     string
	EventType EventType
	Data      map[string]interface{}
	Before    map[string]interface{}
	Timestamp time.Time
}

// Config carries the binlog endpoint coordinates of spec.md §4.7.
type Config struct {
	Host        string
	Port        int
	Destination string
	BatchSize   int
}

// Client is C7's operation set.
type Client interface {
	// Run connects and streams row events to the sink until ctx is
	// canceled, reconnecting with exponential backoff across failures. It
	// returns only when ctx is done; every connect or stream failure is
	// retried.
	Run(ctx context.Context, sink func(RowEvent)) error
	Close() error
}

// streamer is the minimal surface this package needs from a binlog
// streaming backend, so Client can be exercised in tests without a live
// MySQL instance. A go-mysql/canal-backed implementation satisfies this
// by adapting canal.DummyEventHandler's OnRow callback into a RowEvent send.
type streamer interface {
	Connect() error
	StreamRows(ctx context.Context, sink func(RowEvent)) error
	Close()
}

type client struct {
	cfg    Config
	newStream func() streamer
	log    zerolog.Logger
}

// New constructs a Client. newStream is injected so production wiring can
// supply a real go-mysql canal.Canal-backed streamer while tests supply a
// fake one.
func New(cfg Config, newStream func() streamer, log zerolog.Logger) Client {
	return &client{cfg: cfg, newStream: newStream, log: log}
}

// Run implements the reconnect-with-exponential-backoff loop, grounded on
// inipew-pewbot/internal/config/manager.go's self-healing watch restart.
func (c *client) Run(ctx context.Context, sink func(RowEvent)) error {
	const (
		backoffBase = 1 * time.Second
		backoffMax  = 30 * time.Second
	)
	backoff := backoffBase
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s := c.newStream()
		if err := s.Connect(); err != nil {
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("cdc: connect failed, retrying")
			if !sleepBackoff(ctx, backoff, rng) {
				return ctx.Err()
			}
			backoff = minDuration(backoff*2, backoffMax)
			continue
		}

		backoff = backoffBase
		c.log.Info().Str("host", c.cfg.Host).Int("port", c.cfg.Port).Str("destination", c.cfg.Destination).Msg("cdc: connected")

		err := s.StreamRows(ctx, sink)
		s.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			c.log.Warn().Err(err).Dur("backoff", backoff).Msg("cdc: stream disconnected, reconnecting")
		}
		if !sleepBackoff(ctx, backoff, rng) {
			return ctx.Err()
		}
		backoff = minDuration(backoff*2, backoffMax)
	}
}

func (c *client) Close() error { return nil }

func sleepBackoff(ctx context.Context, d time.Duration, rng *rand.Rand) bool {
	jitter := time.Duration(rng.Int63n(int64(d) + 1))
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d + jitter):
		return true
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}
