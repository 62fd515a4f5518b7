package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Exchange is the topic exchange presence events are routed through.
const Exchange = "mekanda.presence"

const (
	dialAttempts   = 5
	publishTimeout = 5 * time.Second
)

type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type AMQPPublisher struct {
	mu     sync.Mutex
	conn   *amqp.Connection
	ch     channel
	log    zerolog.Logger
	closed bool
}

var dialFn = amqp.Dial

// Connect dials the broker with backoff and declares the exchange.
func Connect(ctx context.Context, url string, log zerolog.Logger) (*AMQPPublisher, error) {
	delay := 500 * time.Millisecond
	var lastErr error
	for attempt := 1; attempt <= dialAttempts; attempt++ {
		conn, err := dialFn(url)
		if err == nil {
			ch, err := conn.Channel()
			if err != nil {
				_ = conn.Close()
				return nil, fmt.Errorf("open channel: %w", err)
			}
			if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
				_ = ch.Close()
				_ = conn.Close()
				return nil, fmt.Errorf("declare exchange: %w", err)
			}
			log.Info().Str("action", "amqp_connected").Int("attempt", attempt).Msg("presence events enabled")
			return &AMQPPublisher{conn: conn, ch: ch, log: log}, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("action", "amqp_connection_attempt_failed").Int("attempt", attempt).Msg("retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
			delay *= 2
		}
	}
	return nil, fmt.Errorf("dial amqp after %d attempts: %w", dialAttempts, lastErr)
}

func newAMQPPublisher(ch channel, log zerolog.Logger) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, log: log}
}

func (p *AMQPPublisher) Publish(ctx context.Context, e Event) error {
	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	p.mu.Lock()
	ch, closed := p.ch, p.closed
	p.mu.Unlock()
	if closed || ch == nil {
		return fmt.Errorf("amqp channel not available")
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return ch.PublishWithContext(publishCtx, Exchange, e.Type, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.At,
	})
}

func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var err error
	if p.ch != nil {
		err = p.ch.Close()
	}
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	p.log.Info().Str("action", "amqp_closed").Msg("connection closed")
	return err
}
