package jobrunner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/target/quarantine-scanner/internal/core"
	"github.com/target/quarantine-scanner/internal/domain/event"
	"github.com/target/quarantine-scanner/internal/mocks"
	"github.com/target/quarantine-scanner/internal/observability/statsd"
	"github.com/target/quarantine-scanner/internal/service"
)

type dispatchFunc func(ctx context.Context, batch event.Batch) (service.BatchReport, error)

func (f dispatchFunc) Dispatch(ctx context.Context, batch event.Batch) (service.BatchReport, error) {
	return f(ctx, batch)
}

type settlement struct {
	acked  bool
	nacked []event.Record
	err    error
}

func (s *settlement) delivery(records ...event.Record) *core.Delivery {
	return &core.Delivery{
		Batch: event.Batch{Records: records},
		Ack: func(context.Context) error {
			s.acked = true
			return s.err
		},
		Nack: func(_ context.Context, failed []event.Record) error {
			s.nacked = failed
			return s.err
		},
	}
}

func newTestRunner(t *testing.T, source core.BatchSource, d Dispatcher, rec *statsd.Recorder) *Runner {
	t.Helper()
	r, err := NewRunner(RunnerOptions{
		Source:       source,
		Dispatcher:   d,
		Metrics:      rec,
		ErrorBackoff: 10 * time.Millisecond,
	})
	require.NoError(t, err)
	return r
}

func TestProcessDelivery_AcksSuccessfulBatch(t *testing.T) {
	var s settlement
	r := newTestRunner(t, mocks.NewMockBatchSource(gomock.NewController(t)),
		dispatchFunc(func(_ context.Context, b event.Batch) (service.BatchReport, error) {
			return service.BatchReport{Records: len(b.Records), Jobs: 1}, nil
		}), nil)

	require.NoError(t, r.ProcessDelivery(context.Background(), s.delivery(event.Record{Body: "a"})))
	assert.True(t, s.acked)
	assert.Nil(t, s.nacked)
}

func TestProcessDelivery_NacksRetryableFailures(t *testing.T) {
	var s settlement
	rec := &statsd.Recorder{}
	bad := event.Record{MessageID: "2", Body: "b"}
	r := newTestRunner(t, mocks.NewMockBatchSource(gomock.NewController(t)),
		dispatchFunc(func(context.Context, event.Batch) (service.BatchReport, error) {
			return service.BatchReport{
				Records: 3,
				Failures: []service.RecordFailure{
					{Index: 0, Record: event.Record{Body: "not json"}, Err: errors.New("decode"), Retryable: false},
					{Index: 1, Record: bad, Err: errors.New("copy"), Retryable: true},
				},
			}, nil
		}), rec)

	d := s.delivery(event.Record{Body: "not json"}, bad, event.Record{Body: "c"})
	require.NoError(t, r.ProcessDelivery(context.Background(), d))
	assert.False(t, s.acked)
	assert.Equal(t, []event.Record{bad}, s.nacked)
	assert.Len(t, rec.Named("worker.redelivered"), 1)
}

func TestProcessDelivery_AcksWhenOnlyPermanentFailures(t *testing.T) {
	var s settlement
	r := newTestRunner(t, mocks.NewMockBatchSource(gomock.NewController(t)),
		dispatchFunc(func(context.Context, event.Batch) (service.BatchReport, error) {
			return service.BatchReport{Failures: []service.RecordFailure{
				{Record: event.Record{Body: ""}, Err: event.ErrEmptyBody},
			}}, nil
		}), nil)

	require.NoError(t, r.ProcessDelivery(context.Background(), s.delivery(event.Record{})))
	assert.True(t, s.acked)
}

func TestProcessDelivery_SettlesAfterCancel(t *testing.T) {
	var s settlement
	ctx, cancel := context.WithCancel(context.Background())
	pending := event.Record{Body: "later"}
	r := newTestRunner(t, mocks.NewMockBatchSource(gomock.NewController(t)),
		dispatchFunc(func(ctx context.Context, _ event.Batch) (service.BatchReport, error) {
			cancel()
			return service.BatchReport{Failures: []service.RecordFailure{
				{Record: pending, Err: context.Canceled, Retryable: true},
			}}, ctx.Err()
		}), nil)

	require.NoError(t, r.ProcessDelivery(ctx, s.delivery(pending)))
	assert.Equal(t, []event.Record{pending}, s.nacked)
}

func TestProcessDelivery_ReturnsSettleError(t *testing.T) {
	s := settlement{err: errors.New("channel closed")}
	rec := &statsd.Recorder{}
	r := newTestRunner(t, mocks.NewMockBatchSource(gomock.NewController(t)),
		dispatchFunc(func(context.Context, event.Batch) (service.BatchReport, error) {
			return service.BatchReport{}, nil
		}), rec)

	err := r.ProcessDelivery(context.Background(), s.delivery(event.Record{Body: "a"}))
	require.ErrorContains(t, err, "ack batch")
	assert.Len(t, rec.Named("worker.settle_error"), 1)
}

func TestRun_ReceivesUntilCancelled(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockBatchSource(ctrl)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var s settlement
	var dispatched atomic.Int32
	gomock.InOrder(
		source.EXPECT().Receive(gomock.Any()).Return(nil, errors.New("broker down")),
		source.EXPECT().Receive(gomock.Any()).Return(nil, nil),
		source.EXPECT().Receive(gomock.Any()).Return(s.delivery(event.Record{Body: "a"}), nil),
		source.EXPECT().Receive(gomock.Any()).DoAndReturn(func(ctx context.Context) (*core.Delivery, error) {
			cancel()
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	)
	rec := &statsd.Recorder{}
	r := newTestRunner(t, source, dispatchFunc(func(context.Context, event.Batch) (service.BatchReport, error) {
		dispatched.Add(1)
		return service.BatchReport{Records: 1}, nil
	}), rec)

	require.NoError(t, r.Run(ctx))
	assert.Equal(t, int32(1), dispatched.Load())
	assert.True(t, s.acked)
	assert.Len(t, rec.Named("worker.receive_error"), 1)
}

func TestRun_StopsOnSettleFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := mocks.NewMockBatchSource(ctrl)
	s := settlement{err: errors.New("connection reset")}
	source.EXPECT().Receive(gomock.Any()).Return(s.delivery(event.Record{Body: "a"}), nil)

	r := newTestRunner(t, source, dispatchFunc(func(context.Context, event.Batch) (service.BatchReport, error) {
		return service.BatchReport{}, nil
	}), nil)

	err := r.Run(context.Background())
	require.ErrorContains(t, err, "connection reset")
}

func TestNewRunner_Validation(t *testing.T) {
	_, err := NewRunner(RunnerOptions{})
	require.Error(t, err)

	_, err = NewRunner(RunnerOptions{Source: mocks.NewMockBatchSource(gomock.NewController(t))})
	require.Error(t, err)
}
