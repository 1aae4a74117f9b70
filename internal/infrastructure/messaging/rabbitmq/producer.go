// Package rabbitmq publishes outbox messages to a RabbitMQ topic exchange.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"cardvault/internal/infrastructure/storage/postgres"
	"cardvault/pkg/logger"
)

const dialTimeout = 10 * time.Second

// channel is the subset of *amqp.Channel the producer uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// channelOpener opens a fresh channel after the current one failed.
type channelOpener func() (channel, error)

var _ postgres.OutboxHandler = (*Producer)(nil)

// Producer publishes outbox messages with the event type as routing key.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	open     channelOpener
	exchange string
	log      *logger.Logger
}

// NewProducer dials the broker and declares the durable topic exchange.
func NewProducer(amqpURL, exchange string, log *logger.Logger) (*Producer, error) {
	cleanURL, err := sanitizeURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(dialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	open := func() (channel, error) { return conn.Channel() }
	p, err := newProducer(open, exchange, log)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

func newProducer(open channelOpener, exchange string, log *logger.Logger) (*Producer, error) {
	p := &Producer{
		open:     open,
		exchange: exchange,
		log:      log.WithComponent("rabbitmq-producer"),
	}
	if err := p.reopen(); err != nil {
		return nil, err
	}
	return p, nil
}

// Handle publishes one outbox message. A failed publish reopens the channel
// and retries once; the relay schedules any further retries.
func (p *Producer) Handle(ctx context.Context, msg *postgres.OutboxMessage) error {
	publishing := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID.String(),
		Type:         msg.EventType,
		Timestamp:    msg.CreatedAt,
		Headers: amqp.Table{
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID.String(),
		},
		Body: msg.Payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err := p.ch.PublishWithContext(ctx, p.exchange, msg.EventType, false, false, publishing)
	if err == nil {
		return nil
	}

	p.log.Warnw("publish failed, reopening channel",
		"exchange", p.exchange, "routing_key", msg.EventType, "error", err)
	if reopenErr := p.reopen(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	if err := p.ch.PublishWithContext(ctx, p.exchange, msg.EventType, false, false, publishing); err != nil {
		return fmt.Errorf("publish %s: %w", msg.EventType, err)
	}
	return nil
}

// reopen replaces the channel and re-declares the exchange. Caller holds mu
// or has exclusive access.
func (p *Producer) reopen() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}

	ch, err := p.open()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.ch = ch
	return nil
}

// Close closes the channel and the connection.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogHandler logs messages instead of publishing them. Used when no broker
// is configured.
type LogHandler struct {
	log *logger.Logger
}

// NewLogHandler creates a broker-less outbox handler.
func NewLogHandler(log *logger.Logger) *LogHandler {
	return &LogHandler{log: log.WithComponent("outbox-log")}
}

// Handle logs the message and reports success.
func (h *LogHandler) Handle(_ context.Context, msg *postgres.OutboxMessage) error {
	h.log.Infow("event published",
		"message_id", msg.ID, "event_type", msg.EventType, "aggregate_id", msg.AggregateID)
	return nil
}

func sanitizeURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("parse AMQP_URL: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP_URL scheme must be amqp:// or amqps://")
	}
	return clean, nil
}
