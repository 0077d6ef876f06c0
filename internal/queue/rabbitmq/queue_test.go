package rabbitmq

import (
	"context"
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu    sync.Mutex
	acked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(uint64, bool, bool) error { return nil }

func (f *fakeAcknowledger) Reject(uint64, bool) error { return nil }

func TestDequeueConvertsAndAcks(t *testing.T) {
	t.Parallel()

	acker := &fakeAcknowledger{}
	msgs := make(chan amqp.Delivery, 3)
	msgs <- amqp.Delivery{
		Acknowledger:  acker,
		DeliveryTag:   7,
		CorrelationId: "job-1",
		Body:          []byte(`{"jobId":"job-1"}`),
	}
	msgs <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  8,
		MessageId:    "msg-2",
		Redelivered:  true,
	}
	msgs <- amqp.Delivery{
		Acknowledger: acker,
		DeliveryTag:  9,
		Headers:      amqp.Table{"x-delivery-count": int64(4)},
	}
	close(msgs)

	q := newFromDeliveries(msgs)
	ctx := context.Background()

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "job-1", d.Key)
	assert.Equal(t, 1, d.Attempt)
	require.NoError(t, d.Ack())

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "msg-2", d.Key)
	assert.Equal(t, 2, d.Attempt)

	d, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.Key)
	assert.Equal(t, 5, d.Attempt)
	require.NoError(t, d.Ack())

	_, err = q.Dequeue(ctx)
	assert.ErrorIs(t, err, ErrChannelClosed)

	assert.Equal(t, []uint64{7, 9}, acker.acked)
	assert.NoError(t, q.Close())
}

func TestDequeueHonorsContext(t *testing.T) {
	t.Parallel()

	q := newFromDeliveries(make(chan amqp.Delivery))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Queue: "jobs"})
	assert.Error(t, err)
}
