package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// tier exchanges (topic); each feeds a TTL queue that dead-letters back
	// to the main exchange
	DLX10sExchange = "book.events.dlx.10s"
	DLX1mExchange  = "book.events.dlx.1m"
	DLX10mExchange = "book.events.dlx.10m"

	// final DLQ exchange
	DLXFinalExchange = "book.events.dlx.final"

	rkFinalDLQ = "notifier.final.dlq"
)

// RetryPublisher re-publishes failed deliveries to a retry tier or the final
// DLQ, with confirms so a lost retry is never silently dropped.
type RetryPublisher struct {
	ch *amqp.Channel
	lg zerolog.Logger

	confirmCh <-chan amqp.Confirmation
	returnCh  <-chan amqp.Return
}

func NewRetryPublisher(ch *amqp.Channel, lg zerolog.Logger) (*RetryPublisher, error) {
	if ch == nil {
		return nil, fmt.Errorf("nil channel")
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("confirm mode: %w", err)
	}

	p := &RetryPublisher{
		ch: ch,
		lg: lg.With().Str("component", "retry_publisher").Logger(),
	}
	// must be registered after Confirm
	p.confirmCh = ch.NotifyPublish(make(chan amqp.Confirmation, 32))
	p.returnCh = ch.NotifyReturn(make(chan amqp.Return, 32))
	return p, nil
}

func tierExchange(tier string) string {
	switch tier {
	case "10s":
		return DLX10sExchange
	case "1m":
		return DLX1mExchange
	default:
		return DLX10mExchange
	}
}

// PublishRetry parks the delivery in a tier queue. The original routing key
// is preserved, so the TTL expiry re-feeds the main exchange and the message
// comes back through the normal binding.
func (p *RetryPublisher) PublishRetry(ctx context.Context, tier string, orig amqp.Delivery, nextAttempt int, cause error) error {
	h := copyHeaders(orig.Headers)
	h["x-attempt"] = nextAttempt
	h["x-orig-routing-key"] = orig.RoutingKey
	if cause != nil {
		h["x-error"] = cause.Error()
	}

	ex := tierExchange(tier)
	if err := p.ch.PublishWithContext(ctx, ex, orig.RoutingKey, true, false, amqp.Publishing{
		ContentType:   orig.ContentType,
		Body:          orig.Body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Headers:       h,
		CorrelationId: orig.CorrelationId,
		MessageId:     orig.MessageId,
	}); err != nil {
		return fmt.Errorf("publish retry: %w", err)
	}
	return p.waitAckOrReturn(ctx, ex, orig.RoutingKey)
}

func (p *RetryPublisher) PublishFinal(ctx context.Context, orig amqp.Delivery, reason string, cause error) error {
	h := copyHeaders(orig.Headers)
	h["x-orig-routing-key"] = orig.RoutingKey
	h["x-dlq-reason"] = reason
	if cause != nil {
		h["x-error"] = cause.Error()
	}

	if err := p.ch.PublishWithContext(ctx, DLXFinalExchange, rkFinalDLQ, true, false, amqp.Publishing{
		ContentType:   orig.ContentType,
		Body:          orig.Body,
		DeliveryMode:  amqp.Persistent,
		Timestamp:     time.Now(),
		Headers:       h,
		CorrelationId: orig.CorrelationId,
		MessageId:     orig.MessageId,
	}); err != nil {
		return fmt.Errorf("publish final dlq: %w", err)
	}
	return p.waitAckOrReturn(ctx, DLXFinalExchange, rkFinalDLQ)
}

func (p *RetryPublisher) waitAckOrReturn(ctx context.Context, exchange, rk string) error {
	timer := time.NewTimer(publishWait)
	defer timer.Stop()

	select {
	case r := <-p.returnCh:
		return fmt.Errorf("publish returned: reply=%d text=%q exchange=%q rk=%q",
			r.ReplyCode, r.ReplyText, r.Exchange, r.RoutingKey)
	case c := <-p.confirmCh:
		if !c.Ack {
			return fmt.Errorf("publish nacked by broker (exchange=%q rk=%q)", exchange, rk)
		}
		return nil
	case <-timer.C:
		return errors.New("publish wait timeout (no confirm/return)")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func copyHeaders(in amqp.Table) amqp.Table {
	out := amqp.Table{}
	for k, v := range in {
		out[k] = v
	}
	return out
}
