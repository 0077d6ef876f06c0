// Package memory provides an in-process job queue for local development.
package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// ErrClosed is returned by Enqueue after Close, and by Dequeue after Close
// once the buffer drains.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch        chan ingest.Delivery
	done      chan struct{}
	closeOnce sync.Once
	seq       atomic.Int64
	acked     atomic.Int64
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{
		ch:   make(chan ingest.Delivery, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes a delivery into the queue or returns if the context ends.
// Deliveries without an Acknowledger are counted by Acked when settled.
// A blocked Enqueue returns ErrClosed once Close is called.
func (q *Queue) Enqueue(ctx context.Context, d ingest.Delivery) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	if d.Acker == nil {
		d.Acker = ingest.AckFunc(func() error {
			q.acked.Add(1)
			return nil
		})
	}
	if d.Attempt == 0 {
		d.Attempt = 1
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- d:
		return nil
	}
}

// Publish marshals payload and enqueues it under key. It lets the HTTP
// submission path feed the queue directly when no broker is configured.
func (q *Queue) Publish(ctx context.Context, key string, payload any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	if err := q.Enqueue(ctx, ingest.Delivery{Key: key, Body: body}); err != nil {
		return "", err
	}
	return fmt.Sprintf("memory-%d", q.seq.Add(1)), nil
}

// Dequeue pops the next delivery, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (ingest.Delivery, error) {
	select {
	case <-ctx.Done():
		return ingest.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case d := <-q.ch:
		return d, nil
	case <-q.done:
		select {
		case d := <-q.ch:
			return d, nil
		default:
			return ingest.Delivery{}, ErrClosed
		}
	}
}

// Acked reports how many queue-owned deliveries have been acknowledged.
func (q *Queue) Acked() int64 {
	return q.acked.Load()
}

// Len reports the number of buffered deliveries.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue. Buffered deliveries stay available to Dequeue.
func (q *Queue) Close() {
	q.closeOnce.Do(func() { close(q.done) })
}
