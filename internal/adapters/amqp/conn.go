// Package amqp provides the RabbitMQ batch transport and outcome publisher.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn owns one connection and a confirming publish channel. Consumers open
// their own channels.
type Conn struct {
	conn *amqp.Connection

	mu       sync.Mutex
	pub      *amqp.Channel
	confirms chan amqp.Confirmation
}

// Dial connects to the broker and enables publisher confirms.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("enable publish confirmations: %w", err)
	}
	return &Conn{
		conn:     conn,
		pub:      ch,
		confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1)),
	}, nil
}

// DeclareQueue declares a durable queue.
func (c *Conn) DeclareQueue(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.pub.QueueDeclare(name, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	return nil
}

// DeclareFanout declares a durable fanout exchange.
func (c *Conn) DeclareFanout(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.pub.ExchangeDeclare(name, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	return nil
}

// publish sends one message and waits for the broker confirmation.
func (c *Conn) publish(ctx context.Context, exchange, key string, msg amqp.Publishing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.pub.PublishWithContext(ctx, exchange, key, false, false, msg); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	select {
	case confirmed, ok := <-c.confirms:
		if !ok {
			return errors.New("publish channel closed before confirmation")
		}
		if !confirmed.Ack {
			return errors.New("broker rejected publish")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the publish channel and the connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.pub.Close(), c.conn.Close())
}
