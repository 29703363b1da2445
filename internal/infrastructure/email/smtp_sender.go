// Package email delivers the notifier's messages over SMTP.
package email

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/wneessen/go-mail"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
	Insecure bool
}

type SMTPSender struct {
	lg zerolog.Logger

	host     string
	port     int
	user     string
	pass     string
	from     string
	insecure bool
	timeout  time.Duration
}

func NewSMTPSender(cfg SMTPConfig, lg zerolog.Logger) *SMTPSender {
	return &SMTPSender{
		lg:       lg.With().Str("component", "smtp_sender").Logger(),
		host:     cfg.Host,
		port:     cfg.Port,
		user:     cfg.Username,
		pass:     cfg.Password,
		from:     cfg.From,
		insecure: cfg.Insecure,
		timeout:  cfg.Timeout,
	}
}

func (s *SMTPSender) SendBookDeactivated(ctx context.Context, to, title, reason string) error {
	subject := "Your book was deactivated"
	text := fmt.Sprintf("Your book %q was removed from the marketplace by an administrator.\n", title)
	if reason != "" {
		text += fmt.Sprintf("Reason: %s\n", reason)
	}
	return s.send(ctx, to, subject, text)
}

func (s *SMTPSender) SendBookReactivated(ctx context.Context, to, title string) error {
	subject := "Your book was reactivated"
	text := fmt.Sprintf("Good news: your book %q is available on the marketplace again.\n", title)
	return s.send(ctx, to, subject, text)
}

func (s *SMTPSender) SendBookDiscounted(ctx context.Context, to, title string, price decimal.Decimal, until time.Time) error {
	subject := "A wishlisted book is on sale"
	text := fmt.Sprintf("The book %q on your wishlist is on sale for %s until %s.\n",
		title, price.StringFixed(2), until.UTC().Format("Jan 2, 2006"))
	return s.send(ctx, to, subject, text)
}

func (s *SMTPSender) send(ctx context.Context, to, subject, textBody string) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	m := mail.NewMsg()
	if err := m.From(s.from); err != nil {
		return PermanentError{msg: "invalid from address: " + err.Error()}
	}
	if err := m.To(to); err != nil {
		return PermanentError{msg: "invalid to address: " + err.Error()}
	}
	m.Subject(subject)
	m.SetBodyString(mail.TypeTextPlain, textBody)

	tlsPolicy := mail.TLSMandatory
	if s.insecure {
		tlsPolicy = mail.TLSOpportunistic
	}

	opts := []mail.Option{
		mail.WithPort(s.port),
		mail.WithTLSPolicy(tlsPolicy),
	}
	if s.user != "" {
		opts = append(opts, mail.WithSMTPAuth(mail.SMTPAuthPlain), mail.WithUsername(s.user), mail.WithPassword(s.pass))
	}

	c, err := mail.NewClient(s.host, opts...)
	if err != nil {
		return PermanentError{msg: "smtp client init failed: " + err.Error()}
	}

	if err := c.DialAndSendWithContext(ctx, m); err != nil {
		s.lg.Error().Err(err).Str("to", to).Str("subject", subject).Msg("smtp send failed")
		msg := err.Error()
		if containsAny(msg, "535", "5.7.8", "authentication") {
			return PermanentError{msg: "smtp auth failed: " + msg}
		}
		return TemporaryError{msg: "smtp transient failure: " + msg}
	}

	s.lg.Info().Str("to", to).Str("subject", subject).Msg("smtp send ok")
	return nil
}

func containsAny(s string, subs ...string) bool {
	for _, x := range subs {
		if x != "" && strings.Contains(s, x) {
			return true
		}
	}
	return false
}
