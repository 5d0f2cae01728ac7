package amqp

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/domain/model"
)

type fakeAck struct {
	acked    int
	nacked   int
	requeued bool
	err      error
}

func (f *fakeAck) Ack(bool) error { f.acked++; return f.err }

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked++
	f.requeued = requeue
	return f.err
}

func pendingItems(bodies ...string) ([]pending, []*fakeAck) {
	items := make([]pending, 0, len(bodies))
	acks := make([]*fakeAck, 0, len(bodies))
	for _, b := range bodies {
		a := &fakeAck{}
		acks = append(acks, a)
		items = append(items, pending{record: event.Record{Body: b}, ack: a})
	}
	return items, acks
}

func TestSettle_AckAll(t *testing.T) {
	items, acks := pendingItems("a", "b")
	d := settle(items, slog.Default())

	assert.Equal(t, []event.Record{{Body: "a"}, {Body: "b"}}, d.Batch.Records)
	require.NoError(t, d.Ack(context.Background()))
	for _, a := range acks {
		assert.Equal(t, 1, a.acked)
		assert.Zero(t, a.nacked)
	}
}

func TestSettle_NackRequeuesOnlyFailed(t *testing.T) {
	items, acks := pendingItems("a", "b", "b")
	d := settle(items, slog.Default())

	require.NoError(t, d.Nack(context.Background(), []event.Record{{Body: "b"}}))
	assert.Equal(t, 1, acks[0].acked)
	assert.Equal(t, 1, acks[1].nacked)
	assert.True(t, acks[1].requeued)
	assert.Equal(t, 1, acks[2].acked, "duplicate records are matched one for one")
}

func TestSettle_JoinsErrors(t *testing.T) {
	items, acks := pendingItems("a")
	acks[0].err = errors.New("channel closed")
	d := settle(items, slog.Default())
	require.Error(t, d.Ack(context.Background()))
}

func TestOutcomePublishing(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub, err := outcomePublishing(model.NotificationMessage{
		Topic:      "scan-results",
		Subject:    "readme.md",
		Default:    "{}",
		Email:      "Scan Results of readme.md",
		SMS:        "{}",
		Attributes: map[string]string{model.AttributeStatus: "pass"},
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "pass", pub.Headers[model.AttributeStatus])
	assert.Equal(t, "readme.md", pub.Headers["subject"])
	assert.Equal(t, now, pub.Timestamp)

	decoded, err := model.DecodeNotification(pub.Body)
	require.NoError(t, err)
	assert.Equal(t, "Scan Results of readme.md", decoded.Email)

	_, err = outcomePublishing(model.NotificationMessage{}, now)
	require.Error(t, err)
}

func TestConstructorsRequireConnection(t *testing.T) {
	_, err := NewSource(nil, SourceOptions{Queue: "q"})
	require.Error(t, err)
	_, err = NewPublisher(nil)
	require.Error(t, err)
	_, err = NewSink(nil, "q")
	require.Error(t, err)
}
