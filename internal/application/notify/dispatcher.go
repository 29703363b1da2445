package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
)

// Delivery is one message handed over by the bus consumer.
type Delivery struct {
	MessageID  string
	RoutingKey string
	Body       []byte
	Attempt    int
}

// Operation is one unit of fan-out work for a routing key. Operations must be
// idempotent: the bus delivers at least once.
type Operation interface {
	Name() string
	Handle(ctx context.Context, d Delivery) error
}

// Dispatcher routes deliveries to the operations registered for their routing
// key, in registration order. A failing operation never stops the ones after
// it; the errors are joined so the consumer can decide to retry.
type Dispatcher struct {
	log  zerolog.Logger
	ops  map[string][]Operation
	keys []string
}

func NewDispatcher(log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		log: log.With().Str("component", "dispatcher").Logger(),
		ops: map[string][]Operation{},
	}
}

func (d *Dispatcher) Register(routingKey string, ops ...Operation) {
	if _, ok := d.ops[routingKey]; !ok {
		d.keys = append(d.keys, routingKey)
	}
	d.ops[routingKey] = append(d.ops[routingKey], ops...)
}

// Keys lists the registered routing keys in registration order. The consumer
// binds its queue to exactly these.
func (d *Dispatcher) Keys() []string {
	out := make([]string, len(d.keys))
	copy(out, d.keys)
	return out
}

func (d *Dispatcher) Dispatch(ctx context.Context, msg Delivery) error {
	ops, ok := d.ops[msg.RoutingKey]
	if !ok {
		// unknown keys are dropped, not retried: redelivering them can
		// never succeed
		d.log.Warn().
			Str("routing_key", msg.RoutingKey).
			Str("message_id", msg.MessageID).
			Msg("no operations registered, dropping delivery")
		return nil
	}

	var errs []error
	for _, op := range ops {
		if err := op.Handle(ctx, msg); err != nil {
			d.log.Error().Err(err).
				Str("operation", op.Name()).
				Str("routing_key", msg.RoutingKey).
				Str("message_id", msg.MessageID).
				Msg("operation failed")
			errs = append(errs, fmt.Errorf("%s: %w", op.Name(), err))
		}
	}
	return errors.Join(errs...)
}
