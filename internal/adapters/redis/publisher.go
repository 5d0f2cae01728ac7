package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

// Publisher publishes outcome envelopes on the Redis channel named by the topic.
// Pub/sub has no headers, so attributes ride along in the envelope wrapper.
type Publisher struct {
	client redis.UniversalClient
}

var _ core.Publisher = (*Publisher)(nil)

// NewPublisher creates a Publisher.
func NewPublisher(client redis.UniversalClient) (*Publisher, error) {
	if client == nil {
		return nil, errors.New("redis client is required")
	}
	return &Publisher{client: client}, nil
}

// Publish sends one message. It fails when the topic is empty.
func (p *Publisher) Publish(ctx context.Context, msg model.NotificationMessage) error {
	if msg.Topic == "" {
		return errors.New("topic is required")
	}
	body, err := encodeWithAttributes(msg)
	if err != nil {
		return err
	}
	if err := p.client.Publish(ctx, msg.Topic, body).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.Topic, err)
	}
	return nil
}
