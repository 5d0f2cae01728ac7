package redis

import (
	"encoding/json"
	"fmt"

	"github.com/target/quarantine-scanner/internal/domain/model"
)

// channelMessage is what subscribers of the Redis channel receive.
type channelMessage struct {
	Subject    string            `json:"subject"`
	Message    json.RawMessage   `json:"message"`
	Attributes map[string]string `json:"attributes"`
}

func encodeWithAttributes(msg model.NotificationMessage) ([]byte, error) {
	env, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	b, err := json.Marshal(channelMessage{
		Subject:    msg.Subject,
		Message:    env,
		Attributes: msg.Attributes,
	})
	if err != nil {
		return nil, fmt.Errorf("encode channel message: %w", err)
	}
	return b, nil
}

// DecodeChannelMessage parses a payload received from the channel.
func DecodeChannelMessage(data []byte) (model.NotificationMessage, error) {
	var cm channelMessage
	if err := json.Unmarshal(data, &cm); err != nil {
		return model.NotificationMessage{}, fmt.Errorf("decode channel message: %w", err)
	}
	msg, err := model.DecodeNotification(cm.Message)
	if err != nil {
		return model.NotificationMessage{}, err
	}
	msg.Subject = cm.Subject
	msg.Attributes = cm.Attributes
	return msg, nil
}
