package domain

import "time"

// Notification is one in-app notification row. Rows are append-only and
// deduped on (MessageID, UserID) so an at-least-once redelivery of the same
// domain event cannot create a second row for the same recipient.
type Notification struct {
	ID        string
	MessageID string
	UserID    string
	BookID    string
	Message   string
	CreatedAt time.Time
}
