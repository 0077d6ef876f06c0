// Package rabbitmq consumes job messages from a RabbitMQ queue with manual
// acknowledgement.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/JakeFAU/geo-ingest/internal/ingest"
)

// ErrChannelClosed is returned by Dequeue when the broker closes the
// delivery channel.
var ErrChannelClosed = errors.New("rabbitmq delivery channel closed")

// Config names the queue to consume and the prefetch window.
type Config struct {
	Queue       string
	ConsumerTag string
	// Prefetch bounds unacknowledged deliveries; match it to the pool size.
	Prefetch int
}

// Queue yields deliveries from a RabbitMQ consumer.
type Queue struct {
	channel    *amqp.Channel
	deliveries <-chan amqp.Delivery
}

// New opens a channel on conn, declares the durable queue, applies QoS and
// starts consuming with autoAck disabled.
func New(conn *amqp.Connection, cfg Config) (*Queue, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is required")
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("rabbitmq.queue is required")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if _, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("declare queue %s: %w", cfg.Queue, err)
	}
	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(cfg.Queue, cfg.ConsumerTag, false, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("consume %s: %w", cfg.Queue, err)
	}
	return &Queue{channel: ch, deliveries: msgs}, nil
}

func newFromDeliveries(msgs <-chan amqp.Delivery) *Queue {
	return &Queue{deliveries: msgs}
}

// Dequeue returns the next delivery.
func (q *Queue) Dequeue(ctx context.Context) (ingest.Delivery, error) {
	select {
	case <-ctx.Done():
		return ingest.Delivery{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case msg, ok := <-q.deliveries:
		if !ok {
			return ingest.Delivery{}, ErrChannelClosed
		}
		return toDelivery(msg), nil
	}
}

// Close closes the consumer channel.
func (q *Queue) Close() error {
	if q == nil || q.channel == nil {
		return nil
	}
	return q.channel.Close()
}

func toDelivery(msg amqp.Delivery) ingest.Delivery {
	key := msg.CorrelationId
	if key == "" {
		key = msg.MessageId
	}
	return ingest.Delivery{
		Key:     key,
		Body:    msg.Body,
		Attempt: attempt(msg),
		Acker: ingest.AckFunc(func() error {
			return msg.Ack(false)
		}),
	}
}

// attempt prefers the quorum-queue delivery counter and falls back to the
// redelivered flag.
func attempt(msg amqp.Delivery) int {
	switch v := msg.Headers["x-delivery-count"].(type) {
	case int64:
		return int(v) + 1
	case int32:
		return int(v) + 1
	case int:
		return v + 1
	}
	if msg.Redelivered {
		return 2
	}
	return 1
}
