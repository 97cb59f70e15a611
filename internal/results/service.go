package results

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// Service consumes the result topic and persists each worker's reported
// outcome, grounded on the teacher's internal/task-manager/services
// ResultService.ConsumeResults loop (ReadMessage, decode, update the store).
// Unlike the teacher, which updates the task row directly, this writes a
// separate Record per submission, since one task produces many submissions.
type Service struct {
	reader *kafka.Reader
	store  Store
	log    zerolog.Logger
}

// NewService builds a result-topic consumer bound to store. groupID should
// be distinct from the worker pool's consumer group since this is a
// different logical consumer of a different topic.
func NewService(brokers []string, topic, groupID string, store Store, log zerolog.Logger) *Service {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		GroupID:        groupID,
		Topic:          topic,
		MinBytes:       10e3,
		MaxBytes:       10e6,
		CommitInterval: time.Second,
		MaxWait:        3 * time.Second,
	})
	return &Service{reader: reader, store: store, log: log}
}

// Run blocks consuming result messages until ctx is cancelled, mirroring the
// teacher's ConsumeResults loop structure.
func (s *Service) Run(ctx context.Context) error {
	defer s.reader.Close()
	for {
		m, err := s.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || err == io.EOF {
				return nil
			}
			s.log.Warn().Err(err).Msg("results: read error, retrying")
			continue
		}
		s.handle(ctx, m.Value)
	}
}

func (s *Service) handle(ctx context.Context, raw []byte) {
	var payload Payload
	if err := json.Unmarshal(raw, &payload); err != nil {
		s.log.Error().Err(err).Msg("results: malformed payload, dropping")
		return
	}
	if payload.SubmissionID == "" {
		s.log.Error().Msg("results: payload missing submission_id, dropping")
		return
	}

	now := time.Now()
	rec := Record{
		SubmissionID: payload.SubmissionID,
		PluginName:   payload.PluginName,
		Status:       payload.Status,
		Result:       payload.Result,
		Error:        payload.Error,
		SubmittedAt:  now,
		CompletedAt:  &now,
	}
	if err := s.store.Upsert(ctx, rec); err != nil {
		s.log.Error().Err(err).Str("submission_id", payload.SubmissionID).Msg("results: failed to persist outcome")
	}
}

func (s *Service) Close() error {
	return s.reader.Close()
}
