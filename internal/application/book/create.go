package book

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/bookmesh/ebookstore/internal/domain"
)

type CreateCmd struct {
	OwnerID     string
	Title       string
	Author      string
	Description string
	Price       decimal.Decimal
}

// Create registers a new draft owned by the caller. Drafts are invisible to
// the public catalogue until they pass moderation.
func (s *Service) Create(ctx context.Context, cmd CreateCmd) (*domain.Book, error) {
	b, err := domain.NewDraft(cmd.OwnerID, cmd.Title, cmd.Author, cmd.Description, cmd.Price, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("book_id", b.ID).
		Str("owner_id", b.OwnerID).
		Msg("book draft created")
	return b, nil
}
