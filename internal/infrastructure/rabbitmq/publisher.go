// Package rabbitmq carries the domain events between the API and the
// notifier over a topic exchange, with publisher confirms on both ends and a
// tiered retry topology on the consuming side.
package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultExchange = "book.events"

	// wait window for the broker's Return / Confirm after a publish
	publishWait = 250 * time.Millisecond
)

// Publisher is the outbox worker's side of the bus. Publishes are mandatory
// and confirmed: a message the broker cannot route or persist surfaces as an
// error, which keeps the outbox row pending.
type Publisher struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewPublisher(url, exchange string) (*Publisher, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}
	p := &Publisher{url: url, exchange: exchange}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("exchange declare: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("confirm mode: %w", err)
	}

	p.conn = conn
	p.ch = ch
	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 1))
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// PublishEvent sends one outbox row to the topic exchange. messageID must be
// stable across retries (outbox.message_id) so consumers can dedupe.
func (p *Publisher) PublishEvent(ctx context.Context, routingKey, messageID string, body []byte) error {
	if strings.TrimSpace(routingKey) == "" {
		return errors.New("missing routing key")
	}
	if strings.TrimSpace(messageID) == "" {
		return errors.New("missing message id")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil {
		if err := p.connect(); err != nil {
			return err
		}
	}

	err := p.ch.PublishWithContext(ctx, p.exchange, routingKey,
		true,  // mandatory
		false, // immediate
		amqp.Publishing{
			MessageId:    messageID,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	if err != nil {
		// drop the channel so the next publish reconnects
		p.teardownLocked()
		return fmt.Errorf("publish: %w", err)
	}
	if err := p.waitOutcome(ctx, routingKey); err != nil {
		return err
	}
	return nil
}

func (p *Publisher) teardownLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func (p *Publisher) waitOutcome(ctx context.Context, routingKey string) error {
	timer := time.NewTimer(publishWait)
	defer timer.Stop()

	select {
	case r := <-p.returnCh:
		return fmt.Errorf("publish returned: reply=%d text=%q rk=%q", r.ReplyCode, r.ReplyText, r.RoutingKey)
	case c := <-p.confirmCh:
		if !c.Ack {
			return fmt.Errorf("publish nacked by broker (rk=%q)", routingKey)
		}
		return nil
	case <-timer.C:
		return errors.New("publish wait timeout (no confirm/return)")
	case <-ctx.Done():
		return ctx.Err()
	}
}
