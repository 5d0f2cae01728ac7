// Package redis provides the Redis batch transport and outcome publisher.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
)

// QueueOptions configures a Queue.
type QueueOptions struct {
	Key       string        // Required: list key holding JSON-encoded records
	BatchSize int           // records per delivery; defaults to 10
	Wait      time.Duration // blocking pop timeout; defaults to 5s
	Logger    *slog.Logger
}

// Queue is a Redis list of records. Each element is one JSON event.Record.
// Popped records are gone from the list; Nack pushes failed ones back to
// the tail, so a worker that dies mid-batch loses that batch.
type Queue struct {
	client    redis.UniversalClient
	key       string
	batchSize int
	wait      time.Duration
	logger    *slog.Logger
}

var (
	_ core.BatchSource = (*Queue)(nil)
	_ core.BatchSink   = (*Queue)(nil)
)

// NewQueue creates a Queue on the given client.
func NewQueue(client redis.UniversalClient, opts QueueOptions) (*Queue, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	if opts.Key == "" {
		return nil, errors.New("queue key is required")
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
	return &Queue{
		client:    client,
		key:       opts.Key,
		batchSize: opts.BatchSize,
		wait:      opts.Wait,
		logger:    logger.With("component", "redis_queue", "key", opts.Key),
	}, nil
}

// Receive blocks up to the configured wait for the first record, then takes
// whatever else is immediately available up to the batch size.
func (q *Queue) Receive(ctx context.Context) (*core.Delivery, error) {
	res, err := q.client.BLPop(ctx, q.wait, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("blpop %s: %w", q.key, err)
	}
	raw := []string{res[1]}

	if q.batchSize > 1 {
		more, err := q.client.LPopCount(ctx, q.key, q.batchSize-1).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			// The first record is already popped; hand it over rather than lose it.
			q.logger.WarnContext(ctx, "lpop remaining records", "error", err)
		}
		raw = append(raw, more...)
	}

	batch := event.Batch{Records: make([]event.Record, 0, len(raw))}
	for _, s := range raw {
		batch.Records = append(batch.Records, decodeRecord(s))
	}

	return &core.Delivery{
		Batch: batch,
		Ack:   func(context.Context) error { return nil },
		Nack: func(ctx context.Context, failed []event.Record) error {
			if len(failed) == 0 {
				return nil
			}
			_, err := q.push(ctx, failed)
			return err
		},
	}, nil
}

// Enqueue appends every record of the batch to the list.
func (q *Queue) Enqueue(ctx context.Context, batch event.Batch) (int, error) {
	return q.push(ctx, batch.Records)
}

func (q *Queue) push(ctx context.Context, records []event.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	values := make([]any, 0, len(records))
	for _, rec := range records {
		if rec.MessageID == "" {
			rec.MessageID = uuid.NewString()
		}
		b, err := json.Marshal(rec)
		if err != nil {
			return 0, fmt.Errorf("encode record: %w", err)
		}
		values = append(values, b)
	}
	if err := q.client.RPush(ctx, q.key, values...).Err(); err != nil {
		return 0, fmt.Errorf("rpush %s: %w", q.key, err)
	}
	return len(values), nil
}

// Close is a no-op; the client is owned by the caller.
func (q *Queue) Close() error { return nil }

// decodeRecord parses a list element. Elements that are not a JSON record
// are treated as a bare record body, so the dispatcher can report them.
func decodeRecord(s string) event.Record {
	var rec event.Record
	if err := json.Unmarshal([]byte(s), &rec); err != nil || rec.Body == "" {
		return event.Record{Body: s}
	}
	return rec
}
