package cdc

import (
	"context"
	"fmt"
	"time"

	"github.com/go-mysql-org/go-mysql/canal"
	"github.com/go-mysql-org/go-mysql/schema"
	"github.com/rs/zerolog"
)

// canalStreamer adapts go-mysql's canal.Canal (the real MySQL replication
// client behind C7) to this package's narrow streamer interface.
type canalStreamer struct {
	cfg Config
	log zerolog.Logger
	c   *canal.Canal
}

// NewCanalStreamerFactory returns a constructor suitable for Client's
// newStream injection point, bound to one binlog endpoint.
func NewCanalStreamerFactory(cfg Config, log zerolog.Logger) func() streamer {
	return func() streamer {
		return &canalStreamer{cfg: cfg, log: log}
	}
}

func (s *canalStreamer) Connect() error {
	cfg := canal.NewDefaultConfig()
	cfg.Addr = fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	cfg.Dump.ExecutionPath = "" // rely on binlog streaming only, no initial mysqldump

	c, err := canal.NewCanal(cfg)
	if err != nil {
		return fmt.Errorf("cdc: create canal client: %w", err)
	}
	s.c = c
	return nil
}

// StreamRows registers a row-event handler and runs the canal client's
// blocking event loop, translating each RowsEvent into one or more
// RowEvent sends on sink, one send per row (per before/after pair for
// UPDATE). The configured batch_size is kept on the handler but does not
// group sends.
func (s *canalStreamer) StreamRows(ctx context.Context, sink func(RowEvent)) error {
	if s.c == nil {
		return fmt.Errorf("cdc: streamer not connected")
	}

	handler := &rowEventHandler{sink: sink, batchSize: s.cfg.BatchSize}
	s.c.SetEventHandler(handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.c.Run()
	}()

	select {
	case <-ctx.Done():
		s.c.Close()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *canalStreamer) Close() {
	if s.c != nil {
		s.c.Close()
	}
}

// rowEventHandler implements canal.EventHandler's OnRow callback by
// embedding canal.DummyEventHandler for the rest of the interface.
type rowEventHandler struct {
	canal.DummyEventHandler
	sink      func(RowEvent)
	batchSize int
}

func (h *rowEventHandler) OnRow(e *canal.RowsEvent) error {
	evType, rowsPerEvent := classifyAction(e.Action)
	if evType == "" {
		return nil
	}

	for i := 0; i < len(e.Rows); i += rowsPerEvent {
		data := rowToMap(e.Table, e.Rows[i])
		var before map[string]interface{}
		if evType == EventUpdate && i+1 < len(e.Rows) {
			// UPDATE rows arrive as a before/after pair: Rows[i] is the
			// pre-change image, Rows[i+1] the post-change one.
			before = data
			data = rowToMap(e.Table, e.Rows[i+1])
		}
		h.sink(RowEvent{
			Database:  e.Table.Schema,
			Table:     e.Table.Name,
			EventType: evType,
			Data:      data,
			Before:    before,
			Timestamp: time.Now(),
		})
	}
	return nil
}

func rowToMap(table *schema.Table, row []interface{}) map[string]interface{} {
	data := map[string]interface{}{}
	if table == nil {
		return data
	}
	for colIdx, col := range table.Columns {
		if colIdx < len(row) {
			data[col.Name] = row[colIdx]
		}
	}
	return data
}

// classifyAction maps canal's action string to this package's EventType
// and the row-group width (update rows arrive in before/after pairs).
func classifyAction(action string) (EventType, int) {
	switch action {
	case canal.InsertAction:
		return EventInsert, 1
	case canal.UpdateAction:
		return EventUpdate, 2
	case canal.DeleteAction:
		return EventDelete, 1
	default:
		return "", 1
	}
}
