// Package contracts defines the wire format of the domain events exchanged
// between the book API and the notifier. Producer and consumer both build
// against these types, so the schema cannot drift between the two binaries.
package contracts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventVersion        = 1
	ProducerBookService = "book-service"
)

// Envelope wraps every domain event. Consumers rely on
// version/producer/message_id/occurred_at plus the payload; trace_id is
// optional.
type Envelope[T any] struct {
	Version    int       `json:"version"`
	Producer   string    `json:"producer"`
	MessageID  string    `json:"message_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    T         `json:"payload"`
}

// BookSnapshot freezes the book at the moment of emission. Handlers read the
// snapshot instead of re-fetching the row, which would race with later
// transitions.
type BookSnapshot struct {
	BookID             string          `json:"book_id"`
	OwnerID            string          `json:"owner_id"`
	Title              string          `json:"title"`
	Price              decimal.Decimal `json:"price"`
	DiscountPercentage *int            `json:"discount_percentage,omitempty"`
	DiscountStart      *time.Time      `json:"discount_start,omitempty"`
	DiscountEnd        *time.Time      `json:"discount_end,omitempty"`
	State              string          `json:"state"`
	DeletionReason     *string         `json:"deletion_reason,omitempty"`
}

// BookEventPayload is the business payload shared by the routing keys
// book.deactivated, book.reactivated and book.discounted.
type BookEventPayload struct {
	Book      BookSnapshot `json:"book"`
	Reason    string       `json:"reason,omitempty"`
	ActorRole string       `json:"actor_role,omitempty"`
}

// BookEvent is the concrete envelope every book routing key carries today.
type BookEvent = Envelope[BookEventPayload]

// ParseBookEvent decodes and minimally validates an incoming event body.
// Schema violations are permanent: retrying the same bytes cannot help.
func ParseBookEvent(body []byte) (BookEvent, error) {
	var env BookEvent
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("decode event: %w", err)
	}
	if env.MessageID == "" {
		return env, fmt.Errorf("event is missing message_id")
	}
	if env.Payload.Book.BookID == "" {
		return env, fmt.Errorf("event is missing book_id")
	}
	return env, nil
}
