package book

import (
	"context"
	"time"

	"github.com/bookmesh/ebookstore/internal/domain"
)

type SetDiscountCmd struct {
	BookID     string
	ActorID    string
	ActorRole  domain.Role
	Percentage int
	Start      time.Time
	End        time.Time
}

// SetDiscount sets or replaces the discount window on an owned book and
// emits book.discounted so wishlist subscribers hear about the new price.
func (s *Service) SetDiscount(ctx context.Context, cmd SetDiscountCmd) (*domain.Book, error) {
	var out *domain.Book

	err := s.repo.WithTx(ctx, func(r TxBookRepo) error {
		b, err := r.GetByIDForUpdate(ctx, cmd.BookID)
		if err != nil {
			return err
		}
		if cmd.ActorID == "" || cmd.ActorID != b.OwnerID {
			return domain.ErrForbidden("not the owner of this book")
		}

		now := s.clock.Now()
		if err := b.SetDiscount(cmd.Percentage, cmd.Start, cmd.End, now); err != nil {
			return err
		}
		if err := r.Update(ctx, b); err != nil {
			return err
		}
		if err := s.insertOutbox(ctx, r, domain.EventBookDiscounted, b, "", cmd.ActorRole, now); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, out.ID)
	s.log.Info().
		Str("book_id", out.ID).
		Int("percentage", cmd.Percentage).
		Msg("discount set")
	return out, nil
}
