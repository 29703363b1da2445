package idempotency

import "context"

// Noop never remembers anything. Used in dev when redis is absent; every
// redelivery re-sends, which is acceptable locally.
type Noop struct{}

func (Noop) Seen(context.Context, string) (bool, error) { return false, nil }

func (Noop) MarkSent(context.Context, string) error { return nil }
