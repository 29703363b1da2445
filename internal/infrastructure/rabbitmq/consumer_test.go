package rabbitmq

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmesh/ebookstore/internal/application/notify"
)

type fakeRetryPub struct {
	retries []string // tiers
	finals  []string // reasons
	err     error
}

func (f *fakeRetryPub) PublishRetry(_ context.Context, tier string, _ amqp.Delivery, _ int, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.retries = append(f.retries, tier)
	return nil
}

func (f *fakeRetryPub) PublishFinal(_ context.Context, _ amqp.Delivery, reason string, _ error) error {
	if f.err != nil {
		return f.err
	}
	f.finals = append(f.finals, reason)
	return nil
}

func newTestConsumer(pub retryPublisher) *Consumer {
	c := NewConsumer(ConsumerConfig{Queue: "q"}, notify.NewDispatcher(zerolog.Nop()), zerolog.Nop())
	c.pub = pub
	return c
}

func TestOnDispatchError_RetriableWalksTiers(t *testing.T) {
	pub := &fakeRetryPub{}
	c := newTestConsumer(pub)
	cause := errors.New("smtp down")

	for attempt, wantTier := range map[int]string{0: "10s", 1: "1m", 2: "10m", 3: "10m"} {
		d := amqp.Delivery{RoutingKey: "book.discounted", Headers: amqp.Table{"x-attempt": attempt}}
		require.NoError(t, c.onDispatchError(context.Background(), d, cause))
		assert.Equal(t, wantTier, pub.retries[len(pub.retries)-1], "attempt %d", attempt)
	}
	assert.Empty(t, pub.finals)
}

func TestOnDispatchError_PermanentGoesToDLQ(t *testing.T) {
	pub := &fakeRetryPub{}
	c := newTestConsumer(pub)

	err := c.onDispatchError(context.Background(), amqp.Delivery{RoutingKey: "book.discounted"},
		notify.Permanent(errors.New("bad schema")))
	require.NoError(t, err)
	assert.Empty(t, pub.retries)
	assert.Equal(t, []string{"non_retriable"}, pub.finals)
}

func TestOnDispatchError_MaxAttemptsExhausted(t *testing.T) {
	pub := &fakeRetryPub{}
	c := newTestConsumer(pub)

	d := amqp.Delivery{RoutingKey: "book.discounted", Headers: amqp.Table{"x-attempt": defaultMaxAttempts}}
	require.NoError(t, c.onDispatchError(context.Background(), d, errors.New("still failing")))
	assert.Equal(t, []string{"max_attempts_exceeded"}, pub.finals)
}

func TestOnDispatchError_BrokenPublisherRequeues(t *testing.T) {
	pub := &fakeRetryPub{err: errors.New("channel closed")}
	c := newTestConsumer(pub)

	err := c.onDispatchError(context.Background(), amqp.Delivery{RoutingKey: "book.discounted"},
		errors.New("transient"))
	require.Error(t, err)
	var rerr *requeueError
	assert.True(t, errors.As(err, &rerr), "broken publisher must requeue, not drop")
}

func TestGetAttempt_HeaderShapes(t *testing.T) {
	assert.Equal(t, 0, getAttempt(nil))
	assert.Equal(t, 3, getAttempt(amqp.Table{"x-attempt": int32(3)}))
	assert.Equal(t, 3, getAttempt(amqp.Table{"x-attempt": int64(3)}))
	assert.Equal(t, 3, getAttempt(amqp.Table{"x-attempt": float64(3)}))
	assert.Equal(t, 3, getAttempt(amqp.Table{"x-attempt": "3"}))
	assert.Equal(t, 0, getAttempt(amqp.Table{"x-attempt": []byte("3")}))
}
