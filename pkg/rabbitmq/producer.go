/**
 * @description
 * This package provides a small producer for publishing JSON messages to a
 * RabbitMQ topic exchange, plus a no-op fallback used when the broker cannot
 * be reached at startup.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The RabbitMQ client library.
 */
package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Publisher is the interface implemented by types that can publish events.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer holds the RabbitMQ connection and channel for publishing messages.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	declared map[string]bool
	logger   *slog.Logger
}

// EventProducerFallback is a no-op publisher used when RabbitMQ is unavailable at startup.
type EventProducerFallback struct {
	Logger *slog.Logger
}

func (p *EventProducerFallback) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	if p.Logger != nil {
		p.Logger.Warn("publish skipped", "component", "rabbitmq_producer", "mode", "fallback", "exchange", exchange, "routing_key", routingKey)
	}
	return nil
}

func (p *EventProducerFallback) Close() {}

// SanitizeURL trims quotes and stray prefixes from an AMQP URL and checks its scheme.
func SanitizeURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and opens a channel.
func NewEventProducer(amqpURL string, logger *slog.Logger) (*EventProducer, error) {
	cleanURL, err := SanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	// Bounded dial so startup does not hang on an unreachable broker.
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &EventProducer{
		conn:     conn,
		channel:  ch,
		declared: make(map[string]bool),
		logger:   logger,
	}, nil
}

// Publish marshals body to JSON and sends it to exchange with routingKey. On a
// channel error the channel is reopened once and the publish retried.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.publishLocked(ctx, exchange, routingKey, jsonBody)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel", "component", "rabbitmq_producer", "exchange", exchange, "routing_key", routingKey, "error", err)

	if reopenErr := p.reopenLocked(); reopenErr != nil {
		return reopenErr
	}
	return p.publishLocked(ctx, exchange, routingKey, jsonBody)
}

func (p *EventProducer) publishLocked(ctx context.Context, exchange, routingKey string, body []byte) error {
	if !p.declared[exchange] {
		if err := p.channel.ExchangeDeclare(
			exchange, // name
			"topic",  // type
			true,     // durable
			false,    // autoDelete
			false,    // internal
			false,    // noWait
			nil,      // args
		); err != nil {
			return err
		}
		p.declared[exchange] = true
	}

	return p.channel.PublishWithContext(ctx,
		exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

func (p *EventProducer) reopenLocked() error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp091.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	p.declared = make(map[string]bool)
	return nil
}

// Close gracefully closes the channel and connection to RabbitMQ.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
