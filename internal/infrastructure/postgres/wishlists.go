package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Add is idempotent: wishing for the same book twice keeps one row.
func (s *Store) Add(ctx context.Context, bookID, userID string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO wishlists (book_id, user_id, added_at)
		VALUES ($1, $2, now())
		ON CONFLICT (book_id, user_id) DO NOTHING`,
		bookID, userID)
	if err != nil {
		return fmt.Errorf("add wishlist entry: %w", err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, bookID, userID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM wishlists WHERE book_id = $1 AND user_id = $2`, bookID, userID)
	if err != nil {
		return fmt.Errorf("remove wishlist entry: %w", err)
	}
	return nil
}

// WishlistSubscribers returns the users to fan a book event out to, oldest
// wish first so fan-out order is stable across redeliveries.
func (s *Store) WishlistSubscribers(ctx context.Context, bookID string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT user_id FROM wishlists WHERE book_id = $1 ORDER BY added_at, user_id`, bookID)
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan subscriber: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// EmailFor resolves a user's address at delivery time. A missing user or an
// empty address is not an error; the recipient is simply skipped.
func (s *Store) EmailFor(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx,
		`SELECT coalesce(email, '') FROM users WHERE id = $1`, userID).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve email: %w", err)
	}
	return email, nil
}
