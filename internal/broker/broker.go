// Package broker implements C2, the Broker Gateway of spec.md §4.2, over
// Kafka, grounded on the teacher's internal/task-manager/kafka producer and
// cmd/task-worker consumer loop.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"pluginsched/internal/errs"
)

// Envelope is the logical broker wire format of spec.md §6: each submission
// carries a task name, positional args, keyword args, and execution hints.
type Envelope struct {
	TaskName   string                 `json:"task_name"`
	Args       []string               `json:"args"`
	Kwargs     map[string]interface{} `json:"kwargs"`
	Queue      string                 `json:"queue"`
	Priority   int                    `json:"priority"`
	TimeLimit  int                    `json:"time_limit,omitempty"`
	Retries    int                    `json:"retries"`
	SubmissionID string               `json:"submission_id"`
	SubmittedAt  time.Time            `json:"submitted_at"`
}

// SubmitOptions carries the broker hints spec.md §4.2 describes.
type SubmitOptions struct {
	Queue      string
	Priority   int
	TimeLimit  time.Duration
	MaxRetries int
}

// SubmissionStatus is the lifecycle state of an in-flight submission,
// spec.md §4.3.6.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "PENDING"
	StatusSubmitted SubmissionStatus = "SUBMITTED"
	StatusRevoked   SubmissionStatus = "REVOKED"
	StatusSucceeded SubmissionStatus = "SUCCESS"
	StatusFailed    SubmissionStatus = "FAILED"
)

// Gateway is C2's operation set: spec.md §4.2.
type Gateway interface {
	Submit(ctx context.Context, pluginName string, parameters map[string]interface{}, opts SubmitOptions) (string, error)
	Status(submissionID string) (SubmissionStatus, bool)
	Revoke(submissionID string, terminate bool) error
	RevokeByPlugin(pluginName string, terminate bool) error
	InspectActive() []string
	// IsRevoked lets a worker check the cooperative revocation tombstone
	// before executing a dispatched submission.
	IsRevoked(submissionID string) bool
	Close() error
}

type kafkaGateway struct {
	writer *kafka.Writer
	topic  string
	log    zerolog.Logger

	mu       sync.Mutex
	active   map[string]activeSubmission
	revoked  map[string]bool
}

type activeSubmission struct {
	pluginName string
	status     SubmissionStatus
}

func NewKafka(brokers []string, topic string, log zerolog.Logger) Gateway {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireOne,
		Async:        false,
	}
	return &kafkaGateway{
		writer:  writer,
		topic:   topic,
		log:     log,
		active:  map[string]activeSubmission{},
		revoked: map[string]bool{},
	}
}

// Submit is fire-and-forget from the caller's perspective: the gateway owns
// serialization and retry of the broker call, per spec.md §4.2.
func (g *kafkaGateway) Submit(ctx context.Context, pluginName string, parameters map[string]interface{}, opts SubmitOptions) (string, error) {
	submissionID := uuid.NewString()
	env := Envelope{
		TaskName:     "execute_plugin_task",
		Args:         []string{pluginName},
		Kwargs:       parameters,
		Queue:        opts.Queue,
		Priority:     opts.Priority,
		Retries:      opts.MaxRetries,
		SubmissionID: submissionID,
		SubmittedAt:  time.Now(),
	}
	if opts.TimeLimit > 0 {
		env.TimeLimit = int(opts.TimeLimit.Seconds())
	}

	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("%w: marshal envelope: %v", errs.ErrBrokerUnavailable, err)
	}

	msg := kafka.Message{
		Key:   []byte(submissionID),
		Value: payload,
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		lastErr = g.writer.WriteMessages(writeCtx, msg)
		cancel()
		if lastErr == nil {
			break
		}
		g.log.Warn().Err(lastErr).Int("attempt", attempt).Str("plugin", pluginName).Msg("broker submission failed, retrying")
		time.Sleep(time.Duration(attempt) * 200 * time.Millisecond)
	}
	if lastErr != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrBrokerUnavailable, lastErr)
	}

	g.mu.Lock()
	g.active[submissionID] = activeSubmission{pluginName: pluginName, status: StatusSubmitted}
	g.mu.Unlock()

	return submissionID, nil
}

func (g *kafkaGateway) Status(submissionID string) (SubmissionStatus, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	sub, ok := g.active[submissionID]
	if !ok {
		return "", false
	}
	return sub.status, true
}

// Revoke marks a submission so a worker that checks the revocation
// tombstone before executing will skip it. Kafka has no native cancel, so
// this is cooperative, consistent with the at-least-once contract spec.md
// §1 assumes of the broker.
func (g *kafkaGateway) Revoke(submissionID string, terminate bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.active[submissionID]; !ok {
		return errs.ErrTaskNotFound
	}
	g.revoked[submissionID] = true
	sub := g.active[submissionID]
	sub.status = StatusRevoked
	g.active[submissionID] = sub
	return nil
}

func (g *kafkaGateway) RevokeByPlugin(pluginName string, terminate bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for id, sub := range g.active {
		if sub.pluginName == pluginName {
			g.revoked[id] = true
			sub.status = StatusRevoked
			g.active[id] = sub
		}
	}
	return nil
}

func (g *kafkaGateway) InspectActive() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]string, 0, len(g.active))
	for id, sub := range g.active {
		if sub.status == StatusSubmitted {
			ids = append(ids, id)
		}
	}
	return ids
}

func (g *kafkaGateway) Close() error {
	return g.writer.Close()
}

func (g *kafkaGateway) IsRevoked(submissionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.revoked[submissionID]
}

// SplitBrokers turns a comma-separated broker list env var into a slice,
// matching the teacher's strings.Split(kafkaBrokers, ",") idiom.
func SplitBrokers(csv string) []string {
	return strings.Split(csv, ",")
}
