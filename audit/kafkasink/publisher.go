package kafkasink

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/jrsteele09/go-identity-core/audit"
)

const writeTimeout = 5 * time.Second

// Publisher ships audit events to a Kafka topic. Events are keyed by
// user id so per-user ordering survives partitioning.
type Publisher struct {
	writer *kafka.Writer
}

// New creates a publisher for the given brokers and topic. Returns nil
// when either is unset, which callers treat as "no broker configured".
func New(brokers []string, topic string) *Publisher {
	if len(brokers) == 0 || topic == "" {
		return nil
	}
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Publisher{writer: writer}
}

var _ audit.Sink = (*Publisher)(nil)

func (p *Publisher) Write(ctx context.Context, event audit.Event) error {
	if p == nil || p.writer == nil {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshal audit event")
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	err = p.writer.WriteMessages(writeCtx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: payload,
	})
	return errors.Wrap(err, "kafka write")
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
