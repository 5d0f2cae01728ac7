package logpublisher

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/quarantine-scanner/internal/domain/model"
)

func TestPublish_LogsMessage(t *testing.T) {
	var buf bytes.Buffer
	p := New(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := p.Publish(context.Background(), model.NotificationMessage{
		Topic:      "scan-results",
		Subject:    "eicar.txt",
		Default:    `{"status":"failed"}`,
		Attributes: map[string]string{model.AttributeStatus: "failed"},
	})
	require.NoError(t, err)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "scan result published", entry["msg"])
	assert.Equal(t, "log_publisher", entry["component"])
	assert.Equal(t, "eicar.txt", entry["subject"])
	assert.Equal(t, map[string]any{"status": "failed"}, entry["attributes"])
}
