package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookmesh/ebookstore/internal/contracts"
	"github.com/bookmesh/ebookstore/internal/domain"
	"github.com/bookmesh/ebookstore/internal/metrics"
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// NotifyUsersOp inserts one in-app notification per recipient. Dedupe lives
// in the store: a redelivered message inserts nothing.
type NotifyUsersOp struct {
	store    NotificationStore
	resolver RecipientResolver
	clock    Clock
	log      zerolog.Logger
}

func NewNotifyUsersOp(store NotificationStore, resolver RecipientResolver, clock Clock, log zerolog.Logger) *NotifyUsersOp {
	if clock == nil {
		clock = realClock{}
	}
	return &NotifyUsersOp{
		store:    store,
		resolver: resolver,
		clock:    clock,
		log:      log.With().Str("operation", "notify_user").Logger(),
	}
}

func (o *NotifyUsersOp) Name() string { return "notify_user" }

// resolveRecipients computes the audience for one routing key. Deactivation
// and reactivation concern the owner alone; discounts reach everyone with the
// book on their wishlist, resolved at delivery time so late subscribers are
// included.
func resolveRecipients(ctx context.Context, resolver RecipientResolver, routingKey string, env contracts.BookEvent) ([]string, error) {
	switch routingKey {
	case string(domain.EventBookDeactivated), string(domain.EventBookReactivated):
		if env.Payload.Book.OwnerID == "" {
			return nil, Permanent(fmt.Errorf("event is missing owner_id"))
		}
		return []string{env.Payload.Book.OwnerID}, nil
	case string(domain.EventBookDiscounted):
		subs, err := resolver.WishlistSubscribers(ctx, env.Payload.Book.BookID)
		if err != nil {
			return nil, fmt.Errorf("resolve subscribers: %w", err)
		}
		return subs, nil
	}
	return nil, Permanent(fmt.Errorf("no recipients for routing key %q", routingKey))
}

func (o *NotifyUsersOp) Handle(ctx context.Context, d Delivery) error {
	env, err := contracts.ParseBookEvent(d.Body)
	if err != nil {
		return Permanent(err)
	}

	now := o.clock.Now()
	text, err := notificationText(d.RoutingKey, env, now)
	if err != nil {
		return err
	}

	recipients, err := resolveRecipients(ctx, o.resolver, d.RoutingKey, env)
	if err != nil {
		return err
	}

	// one recipient failing must not starve the rest
	var errs []error
	for _, userID := range recipients {
		inserted, err := o.store.InsertOnce(ctx, domain.Notification{
			MessageID: env.MessageID,
			UserID:    userID,
			BookID:    env.Payload.Book.BookID,
			Message:   text,
			CreatedAt: now.UTC(),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("notify user %s: %w", userID, err))
			continue
		}
		if inserted {
			metrics.NotificationsCreated.Inc()
		} else {
			metrics.IdempotencyHits.Inc()
		}
	}
	return errors.Join(errs...)
}

// SendEmailsOp emails every recipient once per domain event. The idempotency
// store remembers completed sends so a redelivery, or a retry after a partial
// failure, only reaches the recipients still missing.
type SendEmailsOp struct {
	sender   Sender
	resolver RecipientResolver
	idem     IdempotencyStore
	clock    Clock
	log      zerolog.Logger
}

func NewSendEmailsOp(sender Sender, resolver RecipientResolver, idem IdempotencyStore, clock Clock, log zerolog.Logger) *SendEmailsOp {
	if clock == nil {
		clock = realClock{}
	}
	return &SendEmailsOp{
		sender:   sender,
		resolver: resolver,
		idem:     idem,
		clock:    clock,
		log:      log.With().Str("operation", "send_email").Logger(),
	}
}

func (o *SendEmailsOp) Name() string { return "send_email" }

func emailDedupeKey(routingKey, messageID, userID string) string {
	return "email:sent:" + routingKey + ":" + messageID + ":" + userID
}

func (o *SendEmailsOp) Handle(ctx context.Context, d Delivery) error {
	env, err := contracts.ParseBookEvent(d.Body)
	if err != nil {
		return Permanent(err)
	}

	recipients, err := resolveRecipients(ctx, o.resolver, d.RoutingKey, env)
	if err != nil {
		return err
	}

	var errs []error
	for _, userID := range recipients {
		if err := o.sendOne(ctx, d.RoutingKey, env, userID); err != nil {
			errs = append(errs, fmt.Errorf("email user %s: %w", userID, err))
		}
	}
	return errors.Join(errs...)
}

func (o *SendEmailsOp) sendOne(ctx context.Context, routingKey string, env contracts.BookEvent, userID string) error {
	key := emailDedupeKey(routingKey, env.MessageID, userID)

	seen, err := o.idem.Seen(ctx, key)
	if err != nil {
		return fmt.Errorf("idempotency check: %w", err)
	}
	if seen {
		metrics.IdempotencyHits.Inc()
		return nil
	}

	addr, err := o.resolver.EmailFor(ctx, userID)
	if err != nil {
		return fmt.Errorf("resolve email: %w", err)
	}
	if addr == "" {
		o.log.Debug().Str("user_id", userID).Msg("no email on file, skipping")
		return nil
	}

	book := env.Payload.Book
	switch routingKey {
	case string(domain.EventBookDeactivated):
		err = o.sender.SendBookDeactivated(ctx, addr, book.Title, deactivationReason(env))
	case string(domain.EventBookReactivated):
		err = o.sender.SendBookReactivated(ctx, addr, book.Title)
	case string(domain.EventBookDiscounted):
		now := o.clock.Now()
		price, perr := domain.EffectivePrice(book.Price, book.DiscountPercentage, book.DiscountStart, book.DiscountEnd, now)
		if perr != nil {
			return Permanent(perr)
		}
		until := now
		if book.DiscountEnd != nil {
			until = *book.DiscountEnd
		}
		err = o.sender.SendBookDiscounted(ctx, addr, book.Title, price, until)
	default:
		return Permanent(fmt.Errorf("no email template for routing key %q", routingKey))
	}
	if err != nil {
		metrics.EmailsFailed.WithLabelValues(routingKey).Inc()
		return err
	}
	metrics.EmailsSent.WithLabelValues(routingKey).Inc()

	if err := o.idem.MarkSent(ctx, key); err != nil {
		// the mail is out; losing the marker only risks one duplicate
		o.log.Warn().Err(err).Str("key", key).Msg("failed to record email send")
	}
	return nil
}
