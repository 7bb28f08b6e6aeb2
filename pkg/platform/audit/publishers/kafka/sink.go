// Package kafka mirrors audit events to a Kafka topic.
//
// The sink is guarded by a circuit breaker: once the broker has failed enough
// consecutive writes, events are refused immediately until a probe succeeds.
// The local audit store remains the record of truth either way.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "copyright/pkg/platform/audit"
	"copyright/pkg/platform/circuit"
)

var ErrCircuitOpen = errors.New("audit sink circuit open")

// DefaultProduceTimeout bounds a single produce call when the caller's
// context carries no earlier deadline.
const DefaultProduceTimeout = 5 * time.Second

// Producer is the subset of *kgo.Client used by the sink.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
}

type Sink struct {
	producer Producer
	topic    string
	breaker  *circuit.Breaker
	timeout  time.Duration
	logger   *slog.Logger
}

type Option func(*Sink)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Sink) {
		s.logger = logger
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(s *Sink) {
		if b != nil {
			s.breaker = b
		}
	}
}

// WithProduceTimeout caps how long Append waits for the broker to acknowledge.
func WithProduceTimeout(d time.Duration) Option {
	return func(s *Sink) {
		if d > 0 {
			s.timeout = d
		}
	}
}

func New(producer Producer, topic string, opts ...Option) *Sink {
	s := &Sink{
		producer: producer,
		topic:    topic,
		breaker:  circuit.New("audit-kafka"),
		timeout:  DefaultProduceTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append produces event to the audit topic keyed by transaction ID so every
// event of one transaction lands on the same partition. An unacknowledged
// produce counts as a breaker failure once the produce timeout passes.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	if !s.breaker.Allow() {
		return ErrCircuitOpen
	}

	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.TransactionID
	if key == "" {
		key = event.Subject
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(key),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "category", Value: []byte(event.Category)},
			{Key: "action", Value: []byte(event.Action)},
		},
	}

	produceCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.producer.ProduceSync(produceCtx, record).FirstErr(); err != nil {
		if _, change := s.breaker.RecordFailure(); change.Opened && s.logger != nil {
			s.logger.WarnContext(ctx, "audit sink circuit opened",
				"breaker", s.breaker.Name(),
				"topic", s.topic,
				"error", err,
			)
		}
		return fmt.Errorf("produce audit event: %w", err)
	}
	if _, change := s.breaker.RecordSuccess(); change.Closed && s.logger != nil {
		s.logger.InfoContext(ctx, "audit sink circuit closed",
			"breaker", s.breaker.Name(),
			"topic", s.topic,
		)
	}
	return nil
}
