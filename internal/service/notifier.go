package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/model"
	apperrors "github.com/target/quarantine-scanner/internal/errors"
)

// OutcomeNotifierOptions groups dependencies for OutcomeNotifier.
type OutcomeNotifierOptions struct {
	Publisher core.Publisher // Required: topic publisher
	Topic     string         // Required unless the publisher ignores it
	Logger    *slog.Logger   // Optional: structured logger
	Tracer    trace.Tracer   // Optional: defaults to the global provider
}

// OutcomeNotifier renders an Outcome into its multi-format message and publishes it.
type OutcomeNotifier struct {
	publisher core.Publisher
	topic     string
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewOutcomeNotifier constructs an OutcomeNotifier.
func NewOutcomeNotifier(opts OutcomeNotifierOptions) (*OutcomeNotifier, error) {
	if opts.Publisher == nil {
		return nil, errors.New("Publisher is required")
	}
	return &OutcomeNotifier{
		publisher: opts.Publisher,
		topic:     opts.Topic,
		logger:    resolveLogger(opts.Logger).With("component", "outcome_notifier"),
		tracer:    resolveTracer(opts.Tracer),
	}, nil
}

// smsBody is the compact rendering for SMS subscribers.
type smsBody struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
}

// BuildMessage renders the default, email and sms variants and the filter attributes.
func (n *OutcomeNotifier) BuildMessage(outcome model.Outcome) (model.NotificationMessage, error) {
	detail, err := json.Marshal(outcome)
	if err != nil {
		return model.NotificationMessage{}, fmt.Errorf("encode outcome: %w", err)
	}
	sms, err := json.MarshalIndent(smsBody{
		Filename: outcome.FileName,
		Status:   string(outcome.Classification),
	}, "", "  ")
	if err != nil {
		return model.NotificationMessage{}, fmt.Errorf("encode sms body: %w", err)
	}

	return model.NotificationMessage{
		Topic:   n.topic,
		Subject: outcome.FileName,
		Default: string(detail),
		Email: fmt.Sprintf("Scan Results of %s\nStatus: %s\nBucket: %s\nOutput:\n%s",
			outcome.FileName, outcome.Classification, outcome.SourceArea, outcome.Output),
		SMS: string(sms),
		Attributes: map[string]string{
			model.AttributeStatus:   string(outcome.Classification),
			model.AttributeFilename: outcome.FileName,
		},
	}, nil
}

// Notify publishes one message for the outcome. There is no retry here;
// a failure is returned as a notification error.
func (n *OutcomeNotifier) Notify(ctx context.Context, outcome model.Outcome) error {
	ctx, span := n.tracer.Start(ctx, "notify.Notify", trace.WithAttributes(
		attribute.String("job_id", outcome.JobID),
		attribute.String("topic", n.topic),
		attribute.String("status", string(outcome.Classification)),
	))
	defer span.End()

	msg, err := n.BuildMessage(outcome)
	if err != nil {
		err = apperrors.Notification(err, outcome.FileName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	n.logger.DebugContext(ctx, "publishing outcome",
		"job_id", outcome.JobID,
		"topic", msg.Topic,
		"attributes", msg.Attributes,
	)
	if err := n.publisher.Publish(ctx, msg); err != nil {
		err = apperrors.Notification(err, outcome.FileName)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	n.logger.InfoContext(ctx, "outcome published",
		"job_id", outcome.JobID,
		"filename", outcome.FileName,
		"status", outcome.Classification,
	)
	return nil
}
