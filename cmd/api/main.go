// The api binary serves the book HTTP API and runs the outbox worker that
// drains staged domain events to RabbitMQ.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bookmesh/ebookstore/internal/application/book"
	"github.com/bookmesh/ebookstore/internal/config"
	rediscache "github.com/bookmesh/ebookstore/internal/infrastructure/caching/redis"
	"github.com/bookmesh/ebookstore/internal/infrastructure/postgres"
	"github.com/bookmesh/ebookstore/internal/infrastructure/rabbitmq"
	"github.com/bookmesh/ebookstore/internal/logger"
	"github.com/bookmesh/ebookstore/internal/transport/http/handlers"
	authmw "github.com/bookmesh/ebookstore/internal/transport/http/middleware"
	"github.com/bookmesh/ebookstore/internal/transport/http/router"
)

type sysClock struct{}

func (sysClock) Now() time.Time { return time.Now() }

func main() {
	logger.Init()
	lg := logger.Logger.With().Str("service", "book-api").Logger()

	cfg, err := config.Load()
	if err != nil {
		lg.Fatal().Err(err).Msg("config load failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		lg.Fatal().Err(err).Msg("database connect failed")
	}
	defer pool.Close()
	store := postgres.NewStore(pool, lg)

	opts := []book.Option{}
	if cache, err := rediscache.New(cfg.RedisURL); err != nil {
		// cache is an optimization, not a dependency
		lg.Warn().Err(err).Msg("redis unavailable, running without cache")
	} else {
		defer cache.Close()
		opts = append(opts, book.WithCache(cache), book.WithCacheTTL(cfg.CacheTTLDetails))
	}

	svc := book.NewService(store, store, store, lg, opts...)

	if cfg.RabbitURL != "" {
		pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		if err != nil {
			lg.Fatal().Err(err).Msg("rabbitmq connect failed")
		}
		defer pub.Close()

		worker := postgres.NewOutboxWorker(pool, pub, lg,
			postgres.WithPollInterval(cfg.OutboxInterval),
			postgres.WithBatchSize(cfg.OutboxBatchSize),
		)
		go worker.Run(ctx)
	} else {
		lg.Warn().Msg("RABBIT_URL empty; outbox worker disabled, events stay pending")
	}

	h := handlers.NewBooksHandler(svc, sysClock{})
	auth := authmw.NewAuth(cfg.JWTSecret, cfg.JWTIssuer)
	z := handlers.NewHealthHandler(pool)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router.New(h, auth, z, cfg),
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	go func() {
		lg.Info().Str("addr", cfg.HTTPAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error().Err(err).Msg("http server failed")
			stop()
		}
	}()

	<-ctx.Done()
	lg.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error().Err(err).Msg("http shutdown failed")
		os.Exit(1)
	}
}
