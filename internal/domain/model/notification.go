package model

import (
	"encoding/json"
	"fmt"
)

// Notification attribute names subscribers can filter on.
const (
	AttributeStatus   = "status"
	AttributeFilename = "filename"
)

// NotificationMessage carries the three co-published renderings of one Outcome.
type NotificationMessage struct {
	Topic      string
	Subject    string
	Default    string
	Email      string
	SMS        string
	Attributes map[string]string
}

// notificationEnvelope is the multi-format body: each protocol gets its own string.
type notificationEnvelope struct {
	Default string `json:"default"`
	Email   string `json:"email"`
	SMS     string `json:"sms"`
}

// Encode renders the multi-format envelope published to the topic.
func (m NotificationMessage) Encode() ([]byte, error) {
	body, err := json.Marshal(notificationEnvelope{
		Default: m.Default,
		Email:   m.Email,
		SMS:     m.SMS,
	})
	if err != nil {
		return nil, fmt.Errorf("encode notification envelope: %w", err)
	}
	return body, nil
}

// DecodeNotification parses an envelope produced by Encode. Attributes travel
// out of band and are not restored.
func DecodeNotification(data []byte) (NotificationMessage, error) {
	var env notificationEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return NotificationMessage{}, fmt.Errorf("decode notification envelope: %w", err)
	}
	return NotificationMessage{Default: env.Default, Email: env.Email, SMS: env.SMS}, nil
}
