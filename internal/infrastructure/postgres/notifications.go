package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bookmesh/ebookstore/internal/domain"
)

// InsertOnce writes one notification row, relying on the unique
// (message_id, user_id) index to swallow redeliveries. Returns whether a row
// was actually inserted.
func (s *Store) InsertOnce(ctx context.Context, n domain.Notification) (bool, error) {
	id := n.ID
	if id == "" {
		id = uuid.NewString()
	}
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO notifications (id, message_id, user_id, book_id, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		id, n.MessageID, n.UserID, n.BookID, n.Message, n.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert notification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]*domain.Notification, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM notifications WHERE user_id = $1`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count notifications: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, message_id, user_id, book_id, message, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		userID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	out := make([]*domain.Notification, 0, pageSize)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.MessageID, &n.UserID, &n.BookID, &n.Message, &n.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, total, rows.Err()
}
