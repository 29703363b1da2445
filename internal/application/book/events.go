package book

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/bookmesh/ebookstore/internal/contracts"
	"github.com/bookmesh/ebookstore/internal/domain"
	appctx "github.com/bookmesh/ebookstore/internal/pkg/context"
)

func snapshot(b *domain.Book) contracts.BookSnapshot {
	return contracts.BookSnapshot{
		BookID:             b.ID,
		OwnerID:            b.OwnerID,
		Title:              b.Title,
		Price:              b.Price,
		DiscountPercentage: b.DiscountPercentage,
		DiscountStart:      b.DiscountStart,
		DiscountEnd:        b.DiscountEnd,
		State:              string(b.State),
		DeletionReason:     b.DeletionReason,
	}
}

// insertOutbox stages one domain event inside the caller's transaction.
func (s *Service) insertOutbox(
	ctx context.Context,
	r TxBookRepo,
	kind domain.EventKind,
	b *domain.Book,
	reason string,
	actorRole domain.Role,
	now time.Time,
) error {
	messageID := uuid.NewString()
	env := contracts.BookEvent{
		Version:    contracts.EventVersion,
		Producer:   contracts.ProducerBookService,
		MessageID:  messageID,
		TraceID:    appctx.RequestID(ctx),
		OccurredAt: now.UTC(),
		Payload: contracts.BookEventPayload{
			Book:      snapshot(b),
			Reason:    reason,
			ActorRole: string(actorRole),
		},
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	return r.InsertOutbox(ctx, OutboxMessage{
		MessageID:  messageID,
		RoutingKey: string(kind),
		Body:       body,
		CreatedAt:  now.UTC(),
	})
}
