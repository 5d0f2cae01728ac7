package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
)

// SourceOptions configures a Source.
type SourceOptions struct {
	Queue     string        // Required
	Prefetch  int           // unacked deliveries the broker hands this consumer; defaults to BatchSize
	BatchSize int           // deliveries per batch; defaults to 10
	Wait      time.Duration // how long Receive waits for the first delivery; defaults to 5s
	Logger    *slog.Logger
}

// Source consumes a queue with manual acknowledgement. Each delivery body is
// one record body. Failed records are requeued with Nack.
type Source struct {
	ch         *amqp.Channel
	deliveries <-chan amqp.Delivery
	batchSize  int
	wait       time.Duration
	logger     *slog.Logger
	mu         sync.Mutex
}

var _ core.BatchSource = (*Source)(nil)

// NewSource opens a consumer channel on conn.
func NewSource(conn *Conn, opts SourceOptions) (*Source, error) {
	if conn == nil {
		return nil, errors.New("amqp connection is required")
	}
	if opts.Queue == "" {
		return nil, errors.New("queue is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = opts.BatchSize
	}
	if opts.Wait <= 0 {
		opts.Wait = 5 * time.Second
	}
	if err := conn.DeclareQueue(opts.Queue); err != nil {
		return nil, err
	}

	ch, err := conn.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open consumer channel: %w", err)
	}
	if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(opts.Queue, "", false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("register consumer: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		ch:         ch,
		deliveries: deliveries,
		batchSize:  opts.BatchSize,
		wait:       opts.Wait,
		logger:     logger.With("component", "amqp_source", "queue", opts.Queue),
	}, nil
}

// Receive waits up to the configured wait for the first delivery, then takes
// whatever else is already buffered up to the batch size.
func (s *Source) Receive(ctx context.Context) (*core.Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := time.NewTimer(s.wait)
	defer timer.Stop()

	var got []amqp.Delivery
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, nil
	case d, ok := <-s.deliveries:
		if !ok {
			return nil, errors.New("consumer channel closed")
		}
		got = append(got, d)
	}
fill:
	for len(got) < s.batchSize {
		select {
		case d, ok := <-s.deliveries:
			if !ok {
				break fill
			}
			got = append(got, d)
		default:
			break fill
		}
	}

	return newDelivery(got, s.logger), nil
}

// acknowledger is the part of amqp.Delivery a batch settles through.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

type pending struct {
	record event.Record
	ack    acknowledger
}

func newDelivery(got []amqp.Delivery, logger *slog.Logger) *core.Delivery {
	items := make([]pending, 0, len(got))
	for _, d := range got {
		items = append(items, pending{
			record: event.Record{MessageID: d.MessageId, Body: string(d.Body)},
			ack:    d,
		})
	}
	return settle(items, logger)
}

func settle(items []pending, logger *slog.Logger) *core.Delivery {
	batch := event.Batch{Records: make([]event.Record, 0, len(items))}
	for _, it := range items {
		batch.Records = append(batch.Records, it.record)
	}
	return &core.Delivery{
		Batch: batch,
		Ack: func(context.Context) error {
			var errs []error
			for _, it := range items {
				errs = append(errs, it.ack.Ack(false))
			}
			return errors.Join(errs...)
		},
		Nack: func(ctx context.Context, failed []event.Record) error {
			requeue := matchFailed(items, failed)
			var errs []error
			for i, it := range items {
				if requeue[i] {
					errs = append(errs, it.ack.Nack(false, true))
					continue
				}
				errs = append(errs, it.ack.Ack(false))
			}
			if n := countTrue(requeue); n > 0 {
				logger.InfoContext(ctx, "requeued failed records", "count", n)
			}
			return errors.Join(errs...)
		},
	}
}

// matchFailed marks which items correspond to the failed records. Equal
// records are matched one for one in order.
func matchFailed(items []pending, failed []event.Record) []bool {
	marks := make([]bool, len(items))
	for _, f := range failed {
		for i, it := range items {
			if !marks[i] && it.record == f {
				marks[i] = true
				break
			}
		}
	}
	return marks
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// Close cancels the consumer channel. Unacked deliveries return to the queue.
func (s *Source) Close() error {
	return s.ch.Close()
}
