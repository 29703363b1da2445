package email

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// FakeSender logs instead of dialing SMTP. Used in dev when no mail host is
// configured.
type FakeSender struct {
	lg zerolog.Logger

	mu   sync.Mutex
	sent []FakeMessage
}

type FakeMessage struct {
	Kind  string
	To    string
	Title string
}

func NewFakeSender(lg zerolog.Logger) *FakeSender {
	return &FakeSender{lg: lg.With().Str("component", "fake_sender").Logger()}
}

func (f *FakeSender) record(kind, to, title string) {
	f.mu.Lock()
	f.sent = append(f.sent, FakeMessage{Kind: kind, To: to, Title: title})
	f.mu.Unlock()
	f.lg.Info().Str("kind", kind).Str("to", to).Str("title", title).Msg("fake email send")
}

func (f *FakeSender) SendBookDeactivated(_ context.Context, to, title, _ string) error {
	f.record("deactivated", to, title)
	return nil
}

func (f *FakeSender) SendBookReactivated(_ context.Context, to, title string) error {
	f.record("reactivated", to, title)
	return nil
}

func (f *FakeSender) SendBookDiscounted(_ context.Context, to, title string, _ decimal.Decimal, _ time.Time) error {
	f.record("discounted", to, title)
	return nil
}

// Sent returns a copy of everything recorded so far.
func (f *FakeSender) Sent() []FakeMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeMessage, len(f.sent))
	copy(out, f.sent)
	return out
}
