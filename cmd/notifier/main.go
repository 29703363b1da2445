// The notifier binary consumes book domain events and fans them out to
// wishlist subscribers as in-app notifications and emails.
package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/bookmesh/ebookstore/internal/application/notify"
	"github.com/bookmesh/ebookstore/internal/config"
	"github.com/bookmesh/ebookstore/internal/domain"
	"github.com/bookmesh/ebookstore/internal/infrastructure/email"
	"github.com/bookmesh/ebookstore/internal/infrastructure/idempotency"
	"github.com/bookmesh/ebookstore/internal/infrastructure/postgres"
	"github.com/bookmesh/ebookstore/internal/infrastructure/rabbitmq"
	"github.com/bookmesh/ebookstore/internal/logger"
)

func main() {
	logger.Init()
	lg := logger.Logger.With().Str("service", "notifier").Logger()

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal().Err(err).Msg("config load failed")
	}
	if cfg.RabbitURL == "" {
		lg.Fatal().Msg("RABBIT_URL is required for the notifier")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()
	store := postgres.NewStore(pool, lg)

	var sender notify.Sender
	if cfg.SMTPHost != "" {
		sender = email.NewSMTPSender(email.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
			Timeout:  cfg.SMTPTimeout,
			Insecure: cfg.SMTPInsecure,
		}, lg)
	} else {
		lg.Warn().Msg("SMTP_HOST empty; using fake email sender")
		sender = email.NewFakeSender(lg)
	}

	var idem notify.IdempotencyStore = idempotency.Noop{}
	if opts, err := redis.ParseURL(cfg.RedisURL); err != nil {
		lg.Warn().Err(err).Msg("bad REDIS_URL; email dedupe disabled")
	} else {
		rdb := redis.NewClient(opts)
		defer rdb.Close()
		idem = idempotency.NewRedisStore(rdb, idempotency.DefaultTTL)
	}

	dispatcher := notify.NewDispatcher(lg)
	notifyOp := notify.NewNotifyUsersOp(store, store, nil, lg)
	emailOp := notify.NewSendEmailsOp(sender, store, idem, nil, lg)
	for _, key := range []domain.EventKind{
		domain.EventBookDeactivated,
		domain.EventBookReactivated,
		domain.EventBookDiscounted,
	} {
		dispatcher.Register(string(key), notifyOp, emailOp)
	}

	consumer := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		RabbitURL:   cfg.RabbitURL,
		Exchange:    cfg.RabbitExchange,
		Queue:       cfg.ConsumerQueue,
		Prefetch:    cfg.Prefetch,
		MaxAttempts: cfg.MaxAttempts,
		Tag:         "notifier",
	}, dispatcher, lg)
	if err := consumer.Start(ctx); err != nil {
		lg.Fatal().Err(err).Msg("consumer start failed")
	}

	// small ops surface: health + metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: mux, ReadTimeout: 5 * time.Second}

	go func() {
		lg.Info().Str("addr", cfg.HTTPAddr).Msg("ops server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error().Err(err).Msg("ops server failed")
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if err := consumer.Stop(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("consumer stop failed")
	}
}
