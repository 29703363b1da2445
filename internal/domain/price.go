package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// EffectivePrice computes the price of a book given its base price and
// discount window. The discounted value applies only when pct is present, in
// (0,100], and now falls inside [start, end] inclusive; otherwise the base
// price is returned unchanged. The result is rounded to cents.
//
// Pure and deterministic: the notifier recomputes this per recipient and it
// must agree with the price the storefront shows.
func EffectivePrice(base decimal.Decimal, pct *int, start, end *time.Time, now time.Time) (decimal.Decimal, error) {
	if pct != nil && (*pct < 0 || *pct > 100) {
		return decimal.Zero, ErrInvalidDiscount("discount percentage must be between 0 and 100")
	}
	if start != nil && end != nil && start.After(*end) {
		return decimal.Zero, ErrInvalidDiscount("discount window is inverted")
	}
	if pct == nil || *pct == 0 || start == nil || end == nil {
		return base, nil
	}
	if now.Before(*start) || now.After(*end) {
		return base, nil
	}
	factor := hundred.Sub(decimal.NewFromInt(int64(*pct))).Div(hundred)
	return base.Mul(factor).Round(2), nil
}

// ValidateDiscount enforces the book invariant: a percentage requires both
// window bounds, the percentage stays in [0,100], and the window is not
// inverted. A nil percentage is always valid.
func ValidateDiscount(pct *int, start, end *time.Time) error {
	if pct == nil {
		return nil
	}
	if *pct < 0 || *pct > 100 {
		return ErrInvalidDiscount("discount percentage must be between 0 and 100")
	}
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return ErrInvalidDiscount("discount window is required when a percentage is set")
	}
	if start.After(*end) {
		return ErrInvalidDiscount("discount window is inverted")
	}
	return nil
}
