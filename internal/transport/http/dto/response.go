package dto

import "time"

// BookResp is the stable API response model. EffectivePrice is derived at
// response time from the discount window; it is never stored.
type BookResp struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`

	Title       string `json:"title"`
	Author      string `json:"author"`
	Description string `json:"description,omitempty"`

	Price          string `json:"price"`
	EffectivePrice string `json:"effective_price"`

	DiscountPercentage *int       `json:"discount_percentage,omitempty"`
	DiscountStart      *time.Time `json:"discount_start,omitempty"`
	DiscountEnd        *time.Time `json:"discount_end,omitempty"`

	State           string  `json:"state"`
	DeletionReason  *string `json:"deletion_reason,omitempty"`
	RejectionReason *string `json:"rejection_reason,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type NotificationResp struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type PageResp[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}
