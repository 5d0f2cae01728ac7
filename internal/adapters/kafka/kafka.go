// Package kafka provides the Kafka batch transport and outcome publisher.
package kafka

import (
	"strings"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/target/quarantine-scanner/internal/domain/model"
)

// Header names set on published outcome messages.
const (
	HeaderSubject   = "subject"
	HeaderMessageID = "message-id"
)

// TopicName maps a queue or topic name onto Kafka's legal topic characters.
func TopicName(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			return r
		default:
			return '.'
		}
	}, strings.TrimSpace(name))
}

func outcomeHeaders(msg model.NotificationMessage) []kafkago.Header {
	headers := make([]kafkago.Header, 0, len(msg.Attributes)+1)
	headers = append(headers, kafkago.Header{Key: HeaderSubject, Value: []byte(msg.Subject)})
	for k, v := range msg.Attributes {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(v)})
	}
	return headers
}

func headerValue(headers []kafkago.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}
