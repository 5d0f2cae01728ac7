// Package slack posts scan job failure alerts to a Slack incoming webhook.
package slack

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/target/quarantine-scanner/internal/observability/notify"
)

// Config captures the subset of Slack webhook behaviour we need.
type Config struct {
	WebhookURL string
	Channel    string
	Username   string
	Timeout    time.Duration
	RetryLimit int
	Client     *http.Client
	// ObjectURLPrefix, when set, links the object in the alert as <prefix>/<area>/<key>.
	ObjectURLPrefix string
}

// Client delivers job failure notifications to a Slack webhook.
type Client struct {
	webhookURL      string
	channel         string
	username        string
	retryLimit      int
	objectURLPrefix *url.URL
	client          *http.Client
}

// message is a Block Kit webhook body. Text is the notification fallback.
type message struct {
	Text     string  `json:"text"`
	Username string  `json:"username,omitempty"`
	Channel  string  `json:"channel,omitempty"`
	Blocks   []block `json:"blocks"`
}

type block struct {
	Type     string       `json:"type"`
	Text     *textObject  `json:"text,omitempty"`
	Fields   []textObject `json:"fields,omitempty"`
	Elements []textObject `json:"elements,omitempty"`
}

type textObject struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func mrkdwn(s string) textObject { return textObject{Type: "mrkdwn", Text: s} }

// NewClient builds a Slack webhook client.
func NewClient(cfg Config) (*Client, error) {
	webhookURL := strings.TrimSpace(cfg.WebhookURL)
	if webhookURL == "" {
		return nil, errors.New("slack webhook url is required")
	}

	username := strings.TrimSpace(cfg.Username)
	if username == "" {
		username = "scanworker"
	}

	return &Client{
		webhookURL:      webhookURL,
		channel:         strings.TrimSpace(cfg.Channel),
		username:        username,
		retryLimit:      max(cfg.RetryLimit, 0),
		objectURLPrefix: parsePrefix(cfg.ObjectURLPrefix),
		client:          notify.HTTPClient(cfg.Client, cfg.Timeout),
	}, nil
}

// SendJobFailure posts a formatted message to Slack.
func (c *Client) SendJobFailure(ctx context.Context, payload notify.JobFailurePayload) error {
	msg := c.formatMessage(payload)
	return notify.Retry(ctx, c.retryLimit, func(ctx context.Context) error {
		return notify.PostJSON(ctx, c.client, "slack", c.webhookURL, msg)
	})
}

func (c *Client) formatMessage(payload notify.JobFailurePayload) message {
	timestamp := payload.OccurredAt
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	headline := "*Scan job failure*"
	if payload.JobID != "" {
		headline += " `" + payload.JobID + "`"
	}
	if payload.Stage != "" {
		headline += " (" + payload.Stage + ")"
	}

	severity := payload.Severity
	if severity == "" {
		severity = notify.SeverityCritical
	}

	var fields []textObject
	for _, f := range [][2]string{
		{"Severity", severity},
		{"Object", c.formatObjectValue(payload.SourceArea, payload.Key)},
		{"Error class", payload.ErrorClass},
		{"Error", escapeSlackText(payload.Error)},
	} {
		if strings.TrimSpace(f[1]) != "" {
			fields = append(fields, mrkdwn(fmt.Sprintf("*%s*\n%s", f[0], f[1])))
		}
	}

	footer := []textObject{mrkdwn("Occurred " + timestamp.UTC().Format(time.RFC3339))}
	for _, k := range slices.Sorted(maps.Keys(payload.Metadata)) {
		footer = append(footer, mrkdwn(k+": "+escapeSlackText(payload.Metadata[k])))
	}

	blocks := []block{{Type: "section", Text: &textObject{Type: "mrkdwn", Text: headline}}}
	if len(fields) > 0 {
		blocks = append(blocks, block{Type: "section", Fields: fields})
	}
	blocks = append(blocks, block{Type: "context", Elements: footer})

	return message{
		Text:     strings.ReplaceAll(headline, "*", ""),
		Username: c.username,
		Channel:  c.channel,
		Blocks:   blocks,
	}
}

func (c *Client) formatObjectValue(area, key string) string {
	area = strings.TrimSpace(area)
	key = strings.TrimSpace(key)
	if area == "" && key == "" {
		return ""
	}

	display := escapeSlackText(area + "/" + key)
	if c.objectURLPrefix == nil || area == "" || key == "" {
		return display
	}
	return fmt.Sprintf("<%s|%s>", c.objectURLPrefix.JoinPath(area, key).String(), display)
}

// parsePrefix returns nil unless prefix is an absolute URL.
func parsePrefix(prefix string) *url.URL {
	u, err := url.Parse(strings.TrimSpace(prefix))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

var slackEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeSlackText(value string) string {
	return slackEscaper.Replace(value)
}
