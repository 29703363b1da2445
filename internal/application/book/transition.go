package book

import (
	"context"

	"github.com/bookmesh/ebookstore/internal/domain"
)

type TransitionCmd struct {
	BookID    string
	ActorID   string
	ActorRole domain.Role
	Action    domain.Action
	Reason    string
}

// Transition performs one lifecycle action on a book. The row is locked for
// the duration of the transaction, so concurrent actions on the same book
// serialize and the loser re-validates against the committed state. When the
// transition emits a domain event, the outbox row is written in the same
// transaction: either both commit or neither does.
func (s *Service) Transition(ctx context.Context, cmd TransitionCmd) (*domain.Book, error) {
	var out *domain.Book

	err := s.repo.WithTx(ctx, func(r TxBookRepo) error {
		b, err := r.GetByIDForUpdate(ctx, cmd.BookID)
		if err != nil {
			return err
		}

		// ownership precondition for owner-scoped actions; the domain table
		// only checks the privilege class
		if required, ok := domain.RequiredRole(cmd.Action); ok && required == domain.RoleOwner {
			if cmd.ActorID == "" || cmd.ActorID != b.OwnerID {
				return domain.ErrForbidden("not the owner of this book")
			}
		}

		now := s.clock.Now()
		res, err := b.Apply(cmd.Action, cmd.ActorRole, cmd.Reason, now)
		if err != nil {
			return err
		}
		out = b

		if !res.Changed {
			return nil
		}
		if err := r.Update(ctx, b); err != nil {
			return err
		}
		if res.Emits != "" {
			if err := s.insertOutbox(ctx, r, res.Emits, b, cmd.Reason, cmd.ActorRole, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, out.ID)
	s.log.Info().
		Str("book_id", out.ID).
		Str("action", string(cmd.Action)).
		Str("state", string(out.State)).
		Msg("book transition applied")
	return out, nil
}
