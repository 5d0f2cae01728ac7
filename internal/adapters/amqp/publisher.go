package amqp

import (
	"context"
	"errors"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

// Publisher publishes outcome envelopes to a fanout exchange named by the
// topic. Attributes become message headers for header-exchange bindings.
type Publisher struct {
	conn *Conn

	mu       sync.Mutex
	declared map[string]bool
}

var _ core.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher on conn.
func NewPublisher(conn *Conn) (*Publisher, error) {
	if conn == nil {
		return nil, errors.New("amqp connection is required")
	}
	return &Publisher{conn: conn, declared: map[string]bool{}}, nil
}

// Publish declares the exchange on first use and publishes one message.
func (p *Publisher) Publish(ctx context.Context, msg model.NotificationMessage) error {
	pub, err := outcomePublishing(msg, time.Now())
	if err != nil {
		return err
	}
	if err := p.ensureExchange(msg.Topic); err != nil {
		return err
	}
	return p.conn.publish(ctx, msg.Topic, "", pub)
}

func (p *Publisher) ensureExchange(name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.declared[name] {
		return nil
	}
	if err := p.conn.DeclareFanout(name); err != nil {
		return err
	}
	p.declared[name] = true
	return nil
}

func outcomePublishing(msg model.NotificationMessage, now time.Time) (amqp.Publishing, error) {
	if msg.Topic == "" {
		return amqp.Publishing{}, errors.New("topic is required")
	}
	body, err := msg.Encode()
	if err != nil {
		return amqp.Publishing{}, err
	}
	headers := amqp.Table{"subject": msg.Subject}
	for k, v := range msg.Attributes {
		headers[k] = v
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now,
		Headers:      headers,
		Body:         body,
	}, nil
}

// Sink publishes batch records onto the intake queue through the default exchange.
type Sink struct {
	conn  *Conn
	queue string
}

var _ core.BatchSink = (*Sink)(nil)

// NewSink declares the queue and creates a Sink.
func NewSink(conn *Conn, queue string) (*Sink, error) {
	if conn == nil {
		return nil, errors.New("amqp connection is required")
	}
	if queue == "" {
		return nil, errors.New("queue is required")
	}
	if err := conn.DeclareQueue(queue); err != nil {
		return nil, err
	}
	return &Sink{conn: conn, queue: queue}, nil
}

// Enqueue publishes each record, waiting for a broker confirmation per record.
func (s *Sink) Enqueue(ctx context.Context, batch event.Batch) (int, error) {
	for i, rec := range batch.Records {
		if err := s.conn.publish(ctx, "", s.queue, amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    rec.MessageID,
			Body:         []byte(rec.Body),
		}); err != nil {
			return i, err
		}
	}
	return len(batch.Records), nil
}
