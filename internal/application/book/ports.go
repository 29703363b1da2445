package book

import (
	"context"
	"time"

	"github.com/bookmesh/ebookstore/internal/domain"
)

type Clock interface {
	Now() time.Time
}

type BookRepo interface {
	Create(ctx context.Context, b *domain.Book) error
	GetByID(ctx context.Context, id string) (*domain.Book, error)
	ListApproved(ctx context.Context, page, pageSize int) ([]*domain.Book, int, error)
	ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*domain.Book, int, error)

	// WithTx runs fn with a row-locked view of the store. Lifecycle
	// transitions go through here so two transitions on the same book are
	// serialized by the database.
	WithTx(ctx context.Context, fn func(r TxBookRepo) error) error
}

type TxBookRepo interface {
	GetByIDForUpdate(ctx context.Context, id string) (*domain.Book, error)
	Update(ctx context.Context, b *domain.Book) error
	InsertOutbox(ctx context.Context, msg OutboxMessage) error
}

// OutboxMessage is one pending domain event, written in the same transaction
// as the state change it describes.
type OutboxMessage struct {
	MessageID  string
	RoutingKey string
	Body       []byte
	CreatedAt  time.Time
}

// EventPublisher hands an outbox row to the bus. MessageID must be stable
// across retries so consumers can dedupe.
type EventPublisher interface {
	PublishEvent(ctx context.Context, routingKey, messageID string, body []byte) error
}

type WishlistRepo interface {
	Add(ctx context.Context, bookID, userID string) error
	Remove(ctx context.Context, bookID, userID string) error
}

type NotificationReader interface {
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*domain.Notification, int, error)
}

type Cache interface {
	Get(ctx context.Context, key string, dest any) (bool, error)
	Set(ctx context.Context, key string, val any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}
