package book

import (
	"context"

	"github.com/bookmesh/ebookstore/internal/domain"
)

// Wishlist adds the book to the caller's wishlist. Adding twice is a no-op.
// Only approved books can be wishlisted; anything else reads as missing.
func (s *Service) Wishlist(ctx context.Context, bookID, userID string) error {
	b, err := s.repo.GetByID(ctx, bookID)
	if err != nil {
		return err
	}
	if b.State != domain.StateApproved {
		return domain.ErrNotFound("book not found")
	}
	return s.wishlists.Add(ctx, bookID, userID)
}

// Unwishlist removes the book from the caller's wishlist. Removing an absent
// entry is a no-op.
func (s *Service) Unwishlist(ctx context.Context, bookID, userID string) error {
	return s.wishlists.Remove(ctx, bookID, userID)
}
