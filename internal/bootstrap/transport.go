package bootstrap

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/redis/go-redis/v9"

	"github.com/target/quarantine-scanner/config"
	"github.com/target/quarantine-scanner/internal/adapters/amqp"
	"github.com/target/quarantine-scanner/internal/adapters/kafka"
	"github.com/target/quarantine-scanner/internal/adapters/logpublisher"
	redisadapter "github.com/target/quarantine-scanner/internal/adapters/redis"
	"github.com/target/quarantine-scanner/internal/core"
)

// Brokers holds the broker connections shared by the batch transport and the
// outcome publisher, plus everything built on them that needs closing.
type Brokers struct {
	Redis redis.UniversalClient
	AMQP  *amqp.Conn

	closers []io.Closer
}

// usesBackend reports whether either the transport or the publisher needs kind.
func usesBackend(cfg *config.AppConfig, kind string) bool {
	return string(cfg.Transport.Kind) == kind || string(cfg.Notify.Backend) == kind
}

// ConnectBrokers opens only the connections the configured transport and
// notify backend need. Kafka clients connect lazily and need nothing here.
func ConnectBrokers(cfg *config.AppConfig, logger *slog.Logger) (*Brokers, error) {
	var kinds []string
	for _, kind := range []string{string(config.TransportRedis), string(config.TransportAMQP)} {
		if usesBackend(cfg, kind) {
			kinds = append(kinds, kind)
		}
	}
	return ConnectBrokersFor(cfg, logger, kinds...)
}

// ConnectBrokersFor opens connections for the named backends only.
func ConnectBrokersFor(cfg *config.AppConfig, logger *slog.Logger, kinds ...string) (*Brokers, error) {
	b := &Brokers{}
	if slices.Contains(kinds, string(config.TransportRedis)) {
		client, err := ConnectRedis(DatabaseConfig{RedisConfig: cfg.Redis, Logger: logger})
		if err != nil {
			return nil, err
		}
		b.Redis = client
		b.closers = append(b.closers, client)
	}
	if slices.Contains(kinds, string(config.TransportAMQP)) {
		conn, err := amqp.Dial(cfg.AMQP.URL)
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		if logger != nil {
			logger.Info("amqp connected")
		}
		b.AMQP = conn
		b.closers = append(b.closers, conn)
	}
	return b, nil
}

func (b *Brokers) track(c io.Closer) {
	b.closers = append(b.closers, c)
}

// Close releases everything in reverse order of creation.
func (b *Brokers) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i].Close())
	}
	b.closers = nil
	return errors.Join(errs...)
}

// NewBatchSource builds the configured intake transport.
//
//nolint:ireturn // the transport kind is chosen at runtime.
func NewBatchSource(cfg *config.AppConfig, b *Brokers, logger *slog.Logger) (core.BatchSource, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportRedis:
		return redisadapter.NewQueue(b.Redis, redisadapter.QueueOptions{
			Key:       t.Queue,
			BatchSize: t.BatchSize,
			Wait:      t.Wait,
			Logger:    logger,
		})
	case config.TransportKafka:
		src, err := kafka.NewSource(kafka.SourceOptions{
			Brokers:   cfg.Kafka.Brokers,
			Topic:     t.Queue,
			GroupID:   cfg.Kafka.GroupID,
			BatchSize: t.BatchSize,
			Wait:      t.Wait,
			MaxWait:   cfg.Kafka.MaxWait,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.TransportAMQP:
		src, err := amqp.NewSource(b.AMQP, amqp.SourceOptions{
			Queue:     t.Queue,
			Prefetch:  cfg.AMQP.Prefetch,
			BatchSize: t.BatchSize,
			Wait:      t.Wait,
			Logger:    logger,
		})
		if err != nil {
			return nil, err
		}
		return src, nil
	default:
		return nil, fmt.Errorf("unsupported transport %q", t.Kind)
	}
}

// NewBatchSink builds a producer for the configured intake transport.
//
//nolint:ireturn // the transport kind is chosen at runtime.
func NewBatchSink(cfg *config.AppConfig, b *Brokers) (core.BatchSink, error) {
	t := cfg.Transport
	switch t.Kind {
	case config.TransportRedis:
		return redisadapter.NewQueue(b.Redis, redisadapter.QueueOptions{Key: t.Queue})
	case config.TransportKafka:
		sink, err := kafka.NewSink(cfg.Kafka.Brokers, t.Queue)
		if err != nil {
			return nil, err
		}
		b.track(sink)
		return sink, nil
	case config.TransportAMQP:
		return amqp.NewSink(b.AMQP, t.Queue)
	default:
		return nil, fmt.Errorf("unsupported transport %q", t.Kind)
	}
}

// NewPublisher builds the configured outcome publisher.
//
//nolint:ireturn // the backend is chosen at runtime.
func NewPublisher(cfg *config.AppConfig, b *Brokers, logger *slog.Logger) (core.Publisher, error) {
	switch cfg.Notify.Backend {
	case config.NotifyBackendRedis:
		return redisadapter.NewPublisher(b.Redis)
	case config.NotifyBackendKafka:
		pub, err := kafka.NewPublisher(cfg.Kafka.Brokers)
		if err != nil {
			return nil, err
		}
		b.track(pub)
		return pub, nil
	case config.NotifyBackendAMQP:
		return amqp.NewPublisher(b.AMQP)
	case config.NotifyBackendLog:
		return logpublisher.New(logger), nil
	default:
		return nil, fmt.Errorf("unsupported notify backend %q", cfg.Notify.Backend)
	}
}
