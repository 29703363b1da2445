package book

import (
	"context"

	"github.com/bookmesh/ebookstore/internal/domain"
)

// GetPublic returns a book for the anonymous catalogue view. Only approved
// books exist as far as the public is concerned; everything else is a 404.
func (s *Service) GetPublic(ctx context.Context, id string) (*domain.Book, error) {
	if s.cache != nil {
		var cached domain.Book
		if ok, err := s.cache.Get(ctx, cacheKeyBook(id), &cached); err != nil {
			s.log.Warn().Err(err).Str("book_id", id).Msg("cache read failed")
		} else if ok {
			return &cached, nil
		}
	}

	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.State != domain.StateApproved {
		return nil, domain.ErrNotFound("book not found")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKeyBook(id), b, s.cacheTTL); err != nil {
			s.log.Warn().Err(err).Str("book_id", id).Msg("cache write failed")
		}
	}
	return b, nil
}

// Get returns a book for an authenticated caller. Owners see their own books
// in any state, moderators and admins see everything, everyone else only sees
// approved books.
func (s *Service) Get(ctx context.Context, id, actorID string, role domain.Role) (*domain.Book, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.OwnerID == actorID || canModerate(role) || b.State == domain.StateApproved {
		return b, nil
	}
	return nil, domain.ErrNotFound("book not found")
}

// ListPublic pages through the approved catalogue.
func (s *Service) ListPublic(ctx context.Context, page, pageSize int) ([]*domain.Book, int, error) {
	page, pageSize = clampPage(page, pageSize)
	return s.repo.ListApproved(ctx, page, pageSize)
}

// ListMine pages through the caller's own books in every state.
func (s *Service) ListMine(ctx context.Context, ownerID string, page, pageSize int) ([]*domain.Book, int, error) {
	page, pageSize = clampPage(page, pageSize)
	return s.repo.ListByOwner(ctx, ownerID, page, pageSize)
}

// AllowedActions reports which lifecycle actions the caller could take on the
// book right now. The listing is derived from the same transition table Apply
// enforces.
func (s *Service) AllowedActions(ctx context.Context, id, actorID string, role domain.Role) ([]domain.Action, error) {
	b, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	actions := b.AllowedActions(role)

	// owner-scoped actions only apply to the actual owner
	if role == domain.RoleOwner && b.OwnerID != actorID {
		return []domain.Action{}, nil
	}
	return actions, nil
}

// Notifications pages through the caller's in-app notification feed.
func (s *Service) Notifications(ctx context.Context, userID string, page, pageSize int) ([]*domain.Notification, int, error) {
	page, pageSize = clampPage(page, pageSize)
	return s.notifs.ListByUser(ctx, userID, page, pageSize)
}
