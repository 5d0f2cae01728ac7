package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
)

// SourceOptions configures a Source.
type SourceOptions struct {
	Brokers   []string      // Required
	Topic     string        // Required: topic carrying one record body per message
	GroupID   string        // Required: consumer group
	BatchSize int           // messages per delivery; defaults to 10
	Wait      time.Duration // how long Receive waits for the first message; defaults to 5s
	MaxWait   time.Duration // broker fetch wait
	Logger    *slog.Logger
}

// lingerAfterFirst bounds how long Receive keeps filling a batch once it has a message.
const lingerAfterFirst = 100 * time.Millisecond

// Source consumes a Kafka topic through a consumer group. Each message value
// is one record body; offsets are committed when the delivery is settled.
// Only one delivery is outstanding at a time, so concurrent consumer loops
// sharing a Source take turns and offsets are committed in fetch order.
type Source struct {
	reader    *kafkago.Reader
	writer    *kafkago.Writer
	topic     string
	batchSize int
	wait      time.Duration
	logger    *slog.Logger
	gate      settleGate
}

// settleGate admits one unsettled delivery at a time.
type settleGate chan struct{}

func newSettleGate() settleGate {
	return make(settleGate, 1)
}

// acquire blocks until the previous delivery is settled. The returned
// release is safe to call more than once.
func (g settleGate) acquire(ctx context.Context) (func(), error) {
	select {
	case g <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-g }) }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

var _ core.BatchSource = (*Source)(nil)

// NewSource creates a Source. Failed records are re-produced to the same
// topic through an internal writer.
func NewSource(opts SourceOptions) (*Source, error) {
	if len(opts.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if opts.Topic == "" || opts.GroupID == "" {
		return nil, errors.New("kafka topic and group id are required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	topic := TopicName(opts.Topic)

	return &Source{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  opts.Brokers,
			GroupID:  opts.GroupID,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
			MaxWait:  opts.MaxWait,
		}),
		writer:    newWriter(opts.Brokers),
		topic:     topic,
		batchSize: opts.BatchSize,
		wait:      opts.Wait,
		logger:    logger.With("component", "kafka_source", "topic", topic),
		gate:      newSettleGate(),
	}, nil
}

// Receive fetches up to the batch size. It waits up to the configured wait
// for the first message, then briefly for more. It does not fetch until the
// previous delivery has been acked or nacked.
func (s *Source) Receive(ctx context.Context) (*core.Delivery, error) {
	release, err := s.gate.acquire(ctx)
	if err != nil {
		return nil, err
	}

	msgs, err := s.fetchBatch(ctx)
	if err != nil || len(msgs) == 0 {
		release()
		return nil, err
	}

	batch := event.Batch{Records: make([]event.Record, 0, len(msgs))}
	for _, m := range msgs {
		batch.Records = append(batch.Records, toRecord(m))
	}

	return &core.Delivery{
		Batch: batch,
		Ack: func(ctx context.Context) error {
			defer release()
			return s.commit(ctx, msgs)
		},
		Nack: func(ctx context.Context, failed []event.Record) error {
			defer release()
			if len(failed) > 0 {
				if err := s.writer.WriteMessages(ctx, toMessages(s.topic, failed)...); err != nil {
					return fmt.Errorf("requeue %d records: %w", len(failed), err)
				}
				s.logger.InfoContext(ctx, "requeued failed records", "count", len(failed))
			}
			return s.commit(ctx, msgs)
		},
	}, nil
}

func (s *Source) fetchBatch(ctx context.Context) ([]kafkago.Message, error) {
	var msgs []kafkago.Message
	for len(msgs) < s.batchSize {
		wait := s.wait
		if len(msgs) > 0 {
			wait = min(s.wait, lingerAfterFirst)
		}
		m, err := s.fetch(ctx, wait)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, fmt.Errorf("fetch message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

func (s *Source) fetch(ctx context.Context, wait time.Duration) (kafkago.Message, error) {
	fetchCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return s.reader.FetchMessage(fetchCtx)
}

func (s *Source) commit(ctx context.Context, msgs []kafkago.Message) error {
	if err := s.reader.CommitMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	return nil
}

// Close stops the consumer and the requeue writer.
func (s *Source) Close() error {
	return errors.Join(s.reader.Close(), s.writer.Close())
}

func toRecord(m kafkago.Message) event.Record {
	id := headerValue(m.Headers, HeaderMessageID)
	if id == "" {
		id = m.Topic + "/" + strconv.Itoa(m.Partition) + "/" + strconv.FormatInt(m.Offset, 10)
	}
	return event.Record{MessageID: id, Body: string(m.Value)}
}

func toMessages(topic string, records []event.Record) []kafkago.Message {
	msgs := make([]kafkago.Message, 0, len(records))
	for _, rec := range records {
		m := kafkago.Message{Topic: topic, Value: []byte(rec.Body)}
		if rec.MessageID != "" {
			m.Key = []byte(rec.MessageID)
			m.Headers = []kafkago.Header{{Key: HeaderMessageID, Value: []byte(rec.MessageID)}}
		}
		msgs = append(msgs, m)
	}
	return msgs
}

func newWriter(brokers []string) *kafkago.Writer {
	return &kafkago.Writer{
		Addr:                   kafkago.TCP(brokers...),
		Balancer:               &kafkago.LeastBytes{},
		RequiredAcks:           kafkago.RequireAll,
		AllowAutoTopicCreation: true,
	}
}
