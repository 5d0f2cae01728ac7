// Package logpublisher writes outcome notifications to the structured log
// instead of a broker. It backs NOTIFY_BACKEND=log and local fixture runs.
package logpublisher

import (
	"context"
	"log/slog"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

// Publisher logs each message at info level.
type Publisher struct {
	logger *slog.Logger
}

var _ core.Publisher = (*Publisher)(nil)

// New returns a Publisher writing to logger, or slog.Default when nil.
func New(logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{logger: logger.With("component", "log_publisher")}
}

// Publish never fails.
func (p *Publisher) Publish(ctx context.Context, msg model.NotificationMessage) error {
	attrs := make([]any, 0, 2*len(msg.Attributes))
	for k, v := range msg.Attributes {
		attrs = append(attrs, k, v)
	}
	p.logger.InfoContext(ctx, "scan result published",
		"topic", msg.Topic,
		"subject", msg.Subject,
		"message", msg.Default,
		slog.Group("attributes", attrs...),
	)
	return nil
}
