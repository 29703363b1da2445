package notify

import (
	"fmt"
	"time"

	"github.com/bookmesh/ebookstore/internal/contracts"
	"github.com/bookmesh/ebookstore/internal/domain"
)

func deactivationReason(env contracts.BookEvent) string {
	if env.Payload.Book.DeletionReason != nil {
		return *env.Payload.Book.DeletionReason
	}
	return env.Payload.Reason
}

// notificationText renders the in-app message for one routing key. The
// deactivation and reactivation texts address the owner; the discounted text
// addresses a wishlist subscriber and quotes the price effective at delivery
// time, not at emission time.
func notificationText(routingKey string, env contracts.BookEvent, now time.Time) (string, error) {
	book := env.Payload.Book

	switch routingKey {
	case string(domain.EventBookDeactivated):
		if reason := deactivationReason(env); reason != "" {
			return fmt.Sprintf("Your book %q was deactivated: %s", book.Title, reason), nil
		}
		return fmt.Sprintf("Your book %q was deactivated", book.Title), nil

	case string(domain.EventBookReactivated):
		return fmt.Sprintf("Your book %q was reactivated", book.Title), nil

	case string(domain.EventBookDiscounted):
		price, err := domain.EffectivePrice(book.Price, book.DiscountPercentage, book.DiscountStart, book.DiscountEnd, now)
		if err != nil {
			return "", Permanent(err)
		}
		if book.DiscountEnd != nil && now.Before(*book.DiscountEnd) {
			return fmt.Sprintf("Book %q is on sale for %s until %s",
				book.Title, price.StringFixed(2), book.DiscountEnd.UTC().Format("Jan 2, 2006")), nil
		}
		return fmt.Sprintf("Book %q is on sale for %s", book.Title, price.StringFixed(2)), nil
	}

	return "", Permanent(fmt.Errorf("no message template for routing key %q", routingKey))
}
