// Package pagerduty triggers PagerDuty incidents for scan job failures.
package pagerduty

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/target/quarantine-scanner/internal/observability/notify"
)

// APIEndpoint is the PagerDuty Events API v2 ingest URL.
const APIEndpoint = "https://events.pagerduty.com/v2/enqueue"

// Config captures runtime configuration for the PagerDuty sink.
type Config struct {
	RoutingKey string
	Source     string
	Component  string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// Endpoint overrides APIEndpoint.
	Endpoint string
}

// Client publishes trigger events via the Events API v2.
type Client struct {
	routingKey string
	source     string
	component  string
	endpoint   string
	retryLimit int
	client     *http.Client
}

type event struct {
	RoutingKey  string       `json:"routing_key"`
	EventAction string       `json:"event_action"`
	DedupKey    string       `json:"dedup_key"`
	Payload     eventPayload `json:"payload"`
}

type eventPayload struct {
	Summary       string            `json:"summary"`
	Severity      string            `json:"severity"`
	Source        string            `json:"source"`
	Component     string            `json:"component"`
	Class         string            `json:"class,omitempty"`
	Timestamp     string            `json:"timestamp"`
	CustomDetails map[string]string `json:"custom_details"`
}

// NewClient constructs a PagerDuty events client. A routing key is required.
func NewClient(cfg Config) (*Client, error) {
	key := strings.TrimSpace(cfg.RoutingKey)
	if key == "" {
		return nil, errors.New("pagerduty routing key is required")
	}
	return &Client{
		routingKey: key,
		source:     orDefault(cfg.Source, "scanworker"),
		component:  orDefault(cfg.Component, "scanworker"),
		endpoint:   orDefault(cfg.Endpoint, APIEndpoint),
		retryLimit: max(cfg.RetryLimit, 0),
		client:     notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// SendJobFailure submits a trigger event.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	ev := c.buildEvent(payload)
	return notify.Retry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "pagerduty", c.endpoint, ev)
	})
}

func (c *Client) buildEvent(payload notify.JobFailurePayload) event {
	occurredAt := payload.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	details := make(map[string]string, len(payload.Metadata)+6)
	for k, v := range payload.Metadata {
		details[k] = v
	}
	details["job_id"] = payload.JobID
	details["stage"] = payload.Stage
	details["source_area"] = payload.SourceArea
	details["key"] = payload.Key
	details["error"] = payload.Error
	details["error_class"] = payload.ErrorClass

	// One incident per object, so redeliveries of the same key collapse.
	dedupKey := strings.Trim(payload.SourceArea+"/"+payload.Key, "/")
	if dedupKey == "" {
		dedupKey = payload.JobID
	}

	object := orDefault(payload.FileName, orDefault(payload.Key, "unknown object"))
	return event{
		RoutingKey:  c.routingKey,
		EventAction: "trigger",
		DedupKey:    dedupKey,
		Payload: eventPayload{
			Summary:       fmt.Sprintf("Scan of %s failed at %s", object, orDefault(payload.Stage, "unknown stage")),
			Severity:      orDefault(strings.ToLower(payload.Severity), notify.SeverityCritical),
			Source:        c.source,
			Component:     c.component,
			Class:         payload.ErrorClass,
			Timestamp:     occurredAt.UTC().Format(time.RFC3339),
			CustomDetails: details,
		},
	}
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}
