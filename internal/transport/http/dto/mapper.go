package dto

import (
	"time"

	"github.com/bookmesh/ebookstore/internal/domain"
)

func ToBookResp(b *domain.Book, now time.Time) BookResp {
	eff, err := b.EffectivePrice(now)
	if err != nil {
		// a stored discount never violates the invariant; fall back anyway
		eff = b.Price
	}
	return BookResp{
		ID:                 b.ID,
		OwnerID:            b.OwnerID,
		Title:              b.Title,
		Author:             b.Author,
		Description:        b.Description,
		Price:              b.Price.StringFixed(2),
		EffectivePrice:     eff.StringFixed(2),
		DiscountPercentage: b.DiscountPercentage,
		DiscountStart:      b.DiscountStart,
		DiscountEnd:        b.DiscountEnd,
		State:              string(b.State),
		DeletionReason:     b.DeletionReason,
		RejectionReason:    b.RejectionReason,
		CreatedAt:          b.CreatedAt,
		UpdatedAt:          b.UpdatedAt,
	}
}

func ToNotificationResp(n *domain.Notification) NotificationResp {
	return NotificationResp{
		ID:        n.ID,
		BookID:    n.BookID,
		Message:   n.Message,
		CreatedAt: n.CreatedAt,
	}
}
