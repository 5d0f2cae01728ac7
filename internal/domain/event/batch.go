// Package event decodes transport batches and the storage-event documents embedded in them.
package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Batch is one delivery from the queue transport.
type Batch struct {
	Records []Record `json:"Records"`
}

// Record wraps one storage-event document as a JSON string body.
type Record struct {
	MessageID string `json:"messageId,omitempty"`
	Body      string `json:"body"`
}

// ErrEmptyBody is returned for a record that carries no body.
var ErrEmptyBody = errors.New("record body is empty")

// ParseBatch decodes a batch document.
func ParseBatch(data []byte) (Batch, error) {
	var b Batch
	if err := json.Unmarshal(data, &b); err != nil {
		return Batch{}, fmt.Errorf("decode batch: %w", err)
	}
	return b, nil
}

// LoadBatchFile reads a batch fixture from disk.
func LoadBatchFile(path string) (Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Batch{}, fmt.Errorf("read batch file: %w", err)
	}
	return ParseBatch(data)
}

// decodeBody parses a record body into a generic document. Bodies relayed
// through a pub/sub fan-out arrive wrapped as {"Type": "Notification",
// "Message": "<storage event>"}; the wrapper is removed.
func decodeBody(body string) (any, error) {
	if body == "" {
		return nil, ErrEmptyBody
	}
	var doc any
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode record body: %w", err)
	}
	if m, ok := doc.(map[string]any); ok {
		if _, hasRecords := m["Records"]; !hasRecords {
			if inner, ok := m["Message"].(string); ok && inner != "" {
				return decodeBody(inner)
			}
		}
	}
	return doc, nil
}
