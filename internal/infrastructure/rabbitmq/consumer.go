package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/bookmesh/ebookstore/internal/application/notify"
	"github.com/bookmesh/ebookstore/internal/metrics"
)

const (
	qDLQ      = "notifier.dlq"
	qRetry10s = "notifier.retry.10s"
	qRetry1m  = "notifier.retry.1m"
	qRetry10m = "notifier.retry.10m"

	defaultMaxAttempts = 5
)

// retryPublisher is an interface so unit tests can inject a fake without real
// AMQP channels.
type retryPublisher interface {
	PublishRetry(ctx context.Context, tier string, orig amqp.Delivery, nextAttempt int, cause error) error
	PublishFinal(ctx context.Context, orig amqp.Delivery, reason string, cause error) error
}

type ConsumerConfig struct {
	RabbitURL   string
	Exchange    string
	Queue       string
	Prefetch    int
	Tag         string
	MaxAttempts int
}

// Consumer feeds bus deliveries to the dispatcher. A supervisor goroutine
// reconnects with backoff whenever the broker drops the connection; failed
// deliveries walk the retry tiers (10s, 1m, 10m) and land in the final DLQ
// once attempts run out or the failure is permanent.
type Consumer struct {
	url         string
	exchange    string
	queue       string
	prefetch    int
	tag         string
	maxAttempts int

	lg         zerolog.Logger
	dispatcher *notify.Dispatcher

	mu      sync.Mutex
	running bool
	doneCh  chan struct{}

	conn       *amqp.Connection
	chConsume  *amqp.Channel
	chPublish  *amqp.Channel
	deliveries <-chan amqp.Delivery
	pub        retryPublisher
}

func NewConsumer(cfg ConsumerConfig, d *notify.Dispatcher, lg zerolog.Logger) *Consumer {
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	return &Consumer{
		url:         cfg.RabbitURL,
		exchange:    cfg.Exchange,
		queue:       cfg.Queue,
		prefetch:    cfg.Prefetch,
		tag:         cfg.Tag,
		maxAttempts: cfg.MaxAttempts,
		dispatcher:  d,
		lg:          lg.With().Str("component", "rabbitmq_consumer").Logger(),
	}
}

func (c *Consumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.running {
		return nil
	}
	if c.dispatcher == nil {
		return fmt.Errorf("nil dispatcher")
	}
	c.doneCh = make(chan struct{})
	c.running = true
	go c.run(ctx)
	return nil
}

func (c *Consumer) Stop(ctx context.Context) error {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return nil
	}
	doneCh := c.doneCh
	c.running = false
	c.mu.Unlock()

	c.closeConn()

	select {
	case <-doneCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Consumer) run(ctx context.Context) {
	defer func() {
		c.mu.Lock()
		doneCh := c.doneCh
		c.doneCh = nil
		c.running = false
		c.mu.Unlock()
		if doneCh != nil {
			close(doneCh)
		}
	}()

	backoff := 1 * time.Second
	const maxBackoff = 30 * time.Second

	for {
		select {
		case <-ctx.Done():
			c.lg.Info().Msg("consumer supervisor exiting")
			return
		default:
		}
		if !c.isRunning() {
			return
		}

		if err := c.connectAndDeclare(); err != nil {
			if isPreconditionFailed(err) {
				c.lg.Error().Err(err).Msg("topology precondition failed; delete and recreate the MQ resources, then restart")
				return
			}
			c.lg.Error().Err(err).Dur("backoff", backoff).Msg("connect failed; retrying")
			if !sleepOrDone(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		backoff = 1 * time.Second
		c.consumeLoop(ctx)

		select {
		case <-ctx.Done():
			return
		default:
		}

		c.lg.Warn().Dur("backoff", backoff).Msg("deliveries closed; reconnecting")
		c.closeConn()
		if !sleepOrDone(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (c *Consumer) isRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Consumer) connectAndDeclare() error {
	c.closeConn()

	conn, err := amqp.Dial(c.url)
	if err != nil {
		return fmt.Errorf("rabbitmq dial: %w", err)
	}
	chConsume, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("consume channel: %w", err)
	}
	chPublish, err := conn.Channel()
	if err != nil {
		_ = chConsume.Close()
		_ = conn.Close()
		return fmt.Errorf("publish channel: %w", err)
	}

	if err := chConsume.ExchangeDeclare(c.exchange, "topic", true, false, false, false, nil); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("main exchange declare: %w", err)
	}
	for _, ex := range []string{DLX10sExchange, DLX1mExchange, DLX10mExchange, DLXFinalExchange} {
		if err := chConsume.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return fmt.Errorf("dlx exchange declare (%s): %w", ex, err)
		}
	}

	// a rejected delivery falls through to the final DLQ even when the
	// retry publisher itself is broken
	mainArgs := amqp.Table{
		"x-dead-letter-exchange":    DLXFinalExchange,
		"x-dead-letter-routing-key": rkFinalDLQ,
	}
	if _, err := chConsume.QueueDeclare(c.queue, true, false, false, false, mainArgs); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("main queue declare: %w", err)
	}

	for _, key := range c.dispatcher.Keys() {
		if err := chConsume.QueueBind(c.queue, key, c.exchange, false, nil); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return fmt.Errorf("main queue bind (%s): %w", key, err)
		}
	}

	if _, err := chConsume.QueueDeclare(qDLQ, true, false, false, false, nil); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("dlq declare: %w", err)
	}
	if err := chConsume.QueueBind(qDLQ, rkFinalDLQ, DLXFinalExchange, false, nil); err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("dlq bind: %w", err)
	}

	for _, tier := range []struct {
		queue    string
		exchange string
		ttl      time.Duration
	}{
		{qRetry10s, DLX10sExchange, 10 * time.Second},
		{qRetry1m, DLX1mExchange, 1 * time.Minute},
		{qRetry10m, DLX10mExchange, 10 * time.Minute},
	} {
		if err := declareRetryQueue(chConsume, tier.queue, tier.exchange, tier.ttl, c.exchange); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return err
		}
	}

	if c.prefetch > 0 {
		if err := chConsume.Qos(c.prefetch, 0, false); err != nil {
			c.closeAll(conn, chConsume, chPublish)
			return fmt.Errorf("qos: %w", err)
		}
	}

	dlv, err := chConsume.Consume(c.queue, c.tag, false, false, false, false, nil)
	if err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("consume: %w", err)
	}

	pub, err := NewRetryPublisher(chPublish, c.lg)
	if err != nil {
		c.closeAll(conn, chConsume, chPublish)
		return fmt.Errorf("retry publisher: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.chConsume = chConsume
	c.chPublish = chPublish
	c.deliveries = dlv
	c.pub = pub
	c.mu.Unlock()

	c.lg.Info().
		Str("exchange", c.exchange).
		Str("queue", c.queue).
		Strs("bind_keys", c.dispatcher.Keys()).
		Int("prefetch", c.prefetch).
		Msg("rabbitmq consumer ready")
	return nil
}

func declareRetryQueue(ch *amqp.Channel, qName, tierExchange string, ttl time.Duration, mainExchange string) error {
	args := amqp.Table{
		"x-message-ttl":          int64(ttl / time.Millisecond),
		"x-dead-letter-exchange": mainExchange,
	}
	if _, err := ch.QueueDeclare(qName, true, false, false, false, args); err != nil {
		return fmt.Errorf("retry queue declare (%s): %w", qName, err)
	}
	if err := ch.QueueBind(qName, "#", tierExchange, false, nil); err != nil {
		return fmt.Errorf("retry queue bind (%s): %w", qName, err)
	}
	return nil
}

func (c *Consumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-c.deliveries:
			if !ok {
				return
			}

			start := time.Now()
			err := c.handleDelivery(ctx, d)
			if err == nil {
				_ = d.Ack(false)
				metrics.EventsConsumed.WithLabelValues(d.RoutingKey, "ok").Inc()
				c.lg.Info().
					Str("routing_key", d.RoutingKey).
					Str("message_id", d.MessageId).
					Dur("took", time.Since(start)).
					Msg("delivery processed")
				continue
			}

			metrics.EventsConsumed.WithLabelValues(d.RoutingKey, "error").Inc()
			var rerr *requeueError
			if errors.As(err, &rerr) {
				_ = d.Nack(false, true)
				c.lg.Warn().Err(err).Str("routing_key", d.RoutingKey).Msg("handle failed; requeued")
				continue
			}
			// safety net: DLX on the main queue catches this
			_ = d.Nack(false, false)
			c.lg.Error().Err(err).Str("routing_key", d.RoutingKey).Msg("handle failed; nacked to DLX")
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) error {
	err := c.dispatcher.Dispatch(ctx, notify.Delivery{
		MessageID:  d.MessageId,
		RoutingKey: d.RoutingKey,
		Body:       d.Body,
		Attempt:    getAttempt(d.Headers),
	})
	if err == nil {
		return nil
	}
	return c.onDispatchError(ctx, d, err)
}

func (c *Consumer) onDispatchError(ctx context.Context, d amqp.Delivery, err error) error {
	if isNonRetriable(err) {
		return c.toFinalDLQ(ctx, d, "non_retriable", err)
	}

	attempt := getAttempt(d.Headers)
	if attempt >= c.maxAttempts {
		return c.toFinalDLQ(ctx, d, "max_attempts_exceeded", err)
	}

	nextAttempt := attempt + 1
	tier := retryTier(nextAttempt)
	if pubErr := c.pub.PublishRetry(ctx, tier, d, nextAttempt, err); pubErr != nil {
		return requeue(fmt.Errorf("republish retry failed: %w", pubErr))
	}

	c.lg.Warn().
		Int("attempt", nextAttempt).
		Str("routing_key", d.RoutingKey).
		Str("tier", tier).
		Msg("retriable failure; parked in retry tier")
	return nil
}

func (c *Consumer) toFinalDLQ(ctx context.Context, d amqp.Delivery, reason string, cause error) error {
	if pubErr := c.pub.PublishFinal(ctx, d, reason, cause); pubErr != nil {
		return requeue(fmt.Errorf("republish dlq failed: %w", pubErr))
	}
	metrics.DeadLettered.Inc()
	c.lg.Error().Str("reason", reason).Err(cause).Str("message_id", d.MessageId).Msg("sent to final DLQ")
	return nil
}

func retryTier(nextAttempt int) string {
	switch {
	case nextAttempt <= 1:
		return "10s"
	case nextAttempt == 2:
		return "1m"
	default:
		return "10m"
	}
}

func getAttempt(h amqp.Table) int {
	if h == nil {
		return 0
	}
	switch t := h["x-attempt"].(type) {
	case int:
		return t
	case int32:
		return int(t)
	case int64:
		return int(t)
	case float64:
		return int(t)
	case string:
		n, _ := strconv.Atoi(t)
		return n
	default:
		return 0
	}
}

func isNonRetriable(err error) bool {
	if notify.IsPermanent(err) {
		return true
	}
	var per interface{ Permanent() bool }
	if errors.As(err, &per) && per.Permanent() {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type requeueError struct {
	err error
}

func (e *requeueError) Error() string { return e.err.Error() }
func (e *requeueError) Unwrap() error { return e.err }

func requeue(err error) error { return &requeueError{err: err} }

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Consumer) closeAll(conn *amqp.Connection, a, b *amqp.Channel) {
	if b != nil {
		_ = b.Close()
	}
	if a != nil {
		_ = a.Close()
	}
	if conn != nil {
		_ = conn.Close()
	}
}

func (c *Consumer) closeConn() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.chPublish != nil {
		_ = c.chPublish.Close()
		c.chPublish = nil
	}
	if c.chConsume != nil {
		_ = c.chConsume.Close()
		c.chConsume = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.deliveries = nil
	c.pub = nil
}

func isPreconditionFailed(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToUpper(err.Error())
	return strings.Contains(msg, "PRECONDITION_FAILED") || strings.Contains(msg, "INEQUIVALENT ARG")
}
