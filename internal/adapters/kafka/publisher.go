package kafka

import (
	"context"
	"errors"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

// Publisher writes outcome envelopes to the topic named by the message.
// Attributes become message headers so consumers can filter without decoding.
type Publisher struct {
	writer *kafkago.Writer
}

var _ core.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(brokers []string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	return &Publisher{writer: newWriter(brokers)}, nil
}

// Publish writes one message keyed by the subject.
func (p *Publisher) Publish(ctx context.Context, msg model.NotificationMessage) error {
	m, err := outcomeMessage(msg)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, m); err != nil {
		return fmt.Errorf("write to %s: %w", m.Topic, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func outcomeMessage(msg model.NotificationMessage) (kafkago.Message, error) {
	if msg.Topic == "" {
		return kafkago.Message{}, errors.New("topic is required")
	}
	body, err := msg.Encode()
	if err != nil {
		return kafkago.Message{}, err
	}
	return kafkago.Message{
		Topic:   TopicName(msg.Topic),
		Key:     []byte(msg.Subject),
		Value:   body,
		Headers: outcomeHeaders(msg),
	}, nil
}

// Sink produces batches onto the intake topic, one message per record.
type Sink struct {
	writer *kafkago.Writer
	topic  string
}

var _ core.BatchSink = (*Sink)(nil)

// NewSink creates a Sink for the given topic.
func NewSink(brokers []string, topic string) (*Sink, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	return &Sink{writer: newWriter(brokers), topic: TopicName(topic)}, nil
}

// Enqueue writes every record of the batch.
func (s *Sink) Enqueue(ctx context.Context, batch event.Batch) (int, error) {
	if len(batch.Records) == 0 {
		return 0, nil
	}
	if err := s.writer.WriteMessages(ctx, toMessages(s.topic, batch.Records)...); err != nil {
		return 0, fmt.Errorf("write to %s: %w", s.topic, err)
	}
	return len(batch.Records), nil
}

// Close flushes and closes the writer.
func (s *Sink) Close() error {
	return s.writer.Close()
}
