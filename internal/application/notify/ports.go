package notify

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bookmesh/ebookstore/internal/domain"
)

type Clock interface {
	Now() time.Time
}

// NotificationStore persists in-app notifications. InsertOnce reports whether
// a row was actually written; a duplicate (message_id, user_id) pair inserts
// nothing and returns false.
type NotificationStore interface {
	InsertOnce(ctx context.Context, n domain.Notification) (bool, error)
}

// RecipientResolver answers "who cares about this book" at delivery time.
type RecipientResolver interface {
	WishlistSubscribers(ctx context.Context, bookID string) ([]string, error)
	// EmailFor returns "" with a nil error when the user has no address on
	// file; that recipient is skipped, not failed.
	EmailFor(ctx context.Context, userID string) (string, error)
}

// Sender delivers the three email kinds. Implementations classify failures
// via the email package's Permanent/Temporary helpers.
type Sender interface {
	SendBookDeactivated(ctx context.Context, to, title, reason string) error
	SendBookReactivated(ctx context.Context, to, title string) error
	SendBookDiscounted(ctx context.Context, to, title string, price decimal.Decimal, until time.Time) error
}

// IdempotencyStore remembers completed per-recipient email sends across
// redeliveries.
type IdempotencyStore interface {
	Seen(ctx context.Context, key string) (bool, error)
	MarkSent(ctx context.Context, key string) error
}
