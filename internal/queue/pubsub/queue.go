// Package pubsub adapts a Google Cloud Pub/Sub subscription to a job queue.
package pubsub

import (
	"context"
	"errors"
	"fmt"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// KeyAttribute is the message attribute carrying the job id.
const KeyAttribute = "jobId"

// ErrStopped is returned by Dequeue once the receive loop has ended.
var ErrStopped = errors.New("pubsub receive stopped")

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Queue streams subscription messages to Dequeue callers. Messages stay
// outstanding until the delivery is acknowledged.
type Queue struct {
	recv   receiver
	logger *zap.Logger
	ch     chan ingest.Delivery

	startOnce sync.Once
	done      chan struct{}
	errMu     sync.Mutex
	err       error
}

// New creates a Queue for sub. maxOutstanding bounds how many unacknowledged
// messages the client will hold; it should match the worker pool size.
func New(sub *pubsub.Subscriber, maxOutstanding int, logger *zap.Logger) *Queue {
	if sub == nil {
		return newQueue(nil, logger)
	}
	if maxOutstanding > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
	}
	return newQueue(sub, logger)
}

func newQueue(recv receiver, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		recv:   recv,
		logger: logger,
		ch:     make(chan ingest.Delivery),
		done:   make(chan struct{}),
	}
}

// Start runs the receive loop until ctx is canceled.
func (q *Queue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		go q.run(ctx)
	})
}

func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	if q.recv == nil {
		q.setErr(fmt.Errorf("pubsub subscriber is not configured"))
		return
	}
	err := q.recv.Receive(ctx, func(mctx context.Context, msg *pubsub.Message) {
		d := toDelivery(msg)
		select {
		case q.ch <- d:
		case <-mctx.Done():
			msg.Nack()
		}
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Error("pubsub receive failed", zap.Error(err))
		q.setErr(err)
	}
}

func (q *Queue) setErr(err error) {
	q.errMu.Lock()
	defer q.errMu.Unlock()
	q.err = err
}

// Dequeue blocks until a message arrives, ctx ends or the receive loop stops.
func (q *Queue) Dequeue(ctx context.Context) (ingest.Delivery, error) {
	select {
	case <-ctx.Done():
		return ingest.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case d := <-q.ch:
		return d, nil
	case <-q.done:
		q.errMu.Lock()
		defer q.errMu.Unlock()
		if q.err != nil {
			return ingest.Delivery{}, fmt.Errorf("%w: %w", ErrStopped, q.err)
		}
		return ingest.Delivery{}, ErrStopped
	}
}

func toDelivery(msg *pubsub.Message) ingest.Delivery {
	key := msg.Attributes[KeyAttribute]
	if key == "" {
		key = msg.OrderingKey
	}
	attempt := 1
	if msg.DeliveryAttempt != nil && *msg.DeliveryAttempt > 0 {
		attempt = *msg.DeliveryAttempt
	}
	return ingest.Delivery{
		Key:     key,
		Body:    msg.Data,
		Attempt: attempt,
		Acker: ingest.AckFunc(func() error {
			msg.Ack()
			return nil
		}),
	}
}
