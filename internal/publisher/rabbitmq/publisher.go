// Package rabbitmq publishes JSON messages to a RabbitMQ exchange.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Config selects where messages are routed.
type Config struct {
	// Exchange is declared as a durable topic exchange when set; empty
	// publishes through the default exchange straight to RoutingKey.
	Exchange   string
	RoutingKey string
}

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends persistent JSON messages with the publish key as the
// correlation id.
type Publisher struct {
	channel    channel
	exchange   string
	routingKey string
}

// New opens a channel on conn and declares the exchange.
func New(conn *amqp.Connection, cfg Config) (*Publisher, error) {
	if conn == nil {
		return nil, fmt.Errorf("rabbitmq connection is required")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if cfg.Exchange != "" {
		if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
			_ = ch.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", cfg.Exchange, err)
		}
	}
	return newWithChannel(ch, cfg), nil
}

func newWithChannel(ch channel, cfg Config) *Publisher {
	return &Publisher{channel: ch, exchange: cfg.Exchange, routingKey: cfg.RoutingKey}
}

// Publish marshals payload and publishes it. The returned id is the
// generated message id.
func (p *Publisher) Publish(ctx context.Context, key string, payload any) (string, error) {
	if p.channel == nil {
		return "", fmt.Errorf("rabbitmq channel is not configured")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	id := uuid.NewString()
	err = p.channel.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     id,
		CorrelationId: key,
		Timestamp:     time.Now().UTC(),
		Body:          body,
	})
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Close closes the publishing channel.
func (p *Publisher) Close() error {
	if p == nil || p.channel == nil {
		return nil
	}
	return p.channel.Close()
}
