package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan ingest.Delivery, 1)
	errCh := make(chan error, 1)

	go func() {
		d, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- d
	}()

	time.Sleep(10 * time.Millisecond) // allow goroutine to start
	if err := q.Enqueue(context.Background(), ingest.Delivery{Key: "job-1", Body: []byte("{}")}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		if got.Key != "job-1" || got.Attempt != 1 {
			t.Fatalf("unexpected delivery %+v", got)
		}
		if err := got.Ack(); err != nil {
			t.Fatalf("Ack() error = %v", err)
		}
		if q.Acked() != 1 {
			t.Fatalf("expected 1 ack, got %d", q.Acked())
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return delivery")
	}
}

func TestQueuePublishMarshalsPayload(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	id, err := q.Publish(context.Background(), "job-9", map[string]string{"jobId": "job-9"})
	if err != nil || id != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id, err)
	}
	if q.Len() != 1 {
		t.Fatalf("expected 1 buffered delivery, got %d", q.Len())
	}
	d, err := q.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue() error = %v", err)
	}
	if d.Key != "job-9" || string(d.Body) != `{"jobId":"job-9"}` {
		t.Fatalf("unexpected delivery %+v", d)
	}

	if _, err := q.Publish(context.Background(), "k", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := qDequeue.Dequeue(ctx); err == nil ||
		err.Error() != "dequeue canceled: context canceled" {
		t.Fatalf("expected dequeue cancel error, got %v", err)
	}

	qEnqueue := NewQueue(1)
	if err := qEnqueue.Enqueue(context.Background(), ingest.Delivery{Key: "primed"}); err != nil {
		t.Fatalf("failed to prime enqueue queue: %v", err)
	}
	ctx, cancel = context.WithCancel(context.Background())
	cancel()
	if err := qEnqueue.Enqueue(ctx, ingest.Delivery{}); err == nil ||
		err.Error() != "enqueue canceled: context canceled" {
		t.Fatalf("expected enqueue cancel error, got %v", err)
	}
}

func TestQueueCloseDrainsThenFails(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.Enqueue(context.Background(), ingest.Delivery{Key: "last"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	q.Close()
	q.Close()

	if d, err := q.Dequeue(context.Background()); err != nil || d.Key != "last" {
		t.Fatalf("expected buffered delivery after close, got %+v err=%v", d, err)
	}
	if _, err := q.Dequeue(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
	if err := q.Enqueue(context.Background(), ingest.Delivery{}); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed on enqueue, got %v", err)
	}
}

func TestQueueCloseReleasesBlockedEnqueue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	if err := q.Enqueue(context.Background(), ingest.Delivery{Key: "full"}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	result := make(chan error, 1)
	go func() {
		result <- q.Enqueue(context.Background(), ingest.Delivery{Key: "blocked"})
	}()
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		q.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close() blocked behind a pending Enqueue")
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed from blocked enqueue, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("blocked Enqueue did not return after Close")
	}

	if d, err := q.Dequeue(context.Background()); err != nil || d.Key != "full" {
		t.Fatalf("expected buffered delivery after close, got %+v err=%v", d, err)
	}
}
