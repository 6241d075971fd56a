// Package events publishes billing events to RabbitMQ.
package events

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/artpar/carebill/ports"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// DefaultExchange is the topic exchange billing events go to.
const DefaultExchange = "carebill.billing.events"

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes JSON payloads to a topic exchange.
type RabbitMQPublisher struct {
	conn     io.Closer
	channel  Channel
	exchange string
	logger   zerolog.Logger
	now      func() time.Time
	mu       sync.Mutex
}

// Dial connects to url and declares exchange (DefaultExchange when empty).
func Dial(url, exchange string, logger zerolog.Logger) (*RabbitMQPublisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	logger.Info().Str("exchange", exchange).Msg("rabbitmq publisher connected")

	p := NewRabbitMQPublisher(ch, exchange, logger)
	p.conn = conn
	return p, nil
}

// NewRabbitMQPublisher wraps an open channel.
func NewRabbitMQPublisher(ch Channel, exchange string, logger zerolog.Logger) *RabbitMQPublisher {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &RabbitMQPublisher{
		channel:  ch,
		exchange: exchange,
		logger:   logger.With().Str("component", "events").Logger(),
		now:      time.Now,
	}
}

// Publish sends payload with the given routing key as a persistent message.
func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now(),
		Body:         payload,
	})
	if err != nil {
		p.logger.Error().Err(err).Str("routing_key", routingKey).Msg("publish failed")
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	p.logger.Debug().Str("routing_key", routingKey).Int("size", len(payload)).Msg("event published")
	return nil
}

// Close closes the channel and, when dialled, the connection.
func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		if err := p.channel.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("close channel")
		}
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			return err
		}
	}
	return nil
}

// NoopPublisher logs events without sending them.
type NoopPublisher struct {
	logger zerolog.Logger
}

// NewNoopPublisher creates a publisher that does nothing.
func NewNoopPublisher(logger zerolog.Logger) *NoopPublisher {
	return &NoopPublisher{logger: logger}
}

// Publish logs the event at debug level.
func (p *NoopPublisher) Publish(_ context.Context, routingKey string, payload []byte) error {
	p.logger.Debug().Str("routing_key", routingKey).Int("size", len(payload)).Msg("noop publish")
	return nil
}

// Close is a no-op.
func (p *NoopPublisher) Close() error { return nil }

var (
	_ ports.EventPublisher = (*RabbitMQPublisher)(nil)
	_ ports.EventPublisher = (*NoopPublisher)(nil)
)
