package postgres

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bookmesh/ebookstore/internal/application/book"
	"github.com/bookmesh/ebookstore/internal/metrics"
)

func (t *txStore) InsertOutbox(ctx context.Context, msg book.OutboxMessage) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO book_outbox (message_id, routing_key, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, 'pending', 0, $4, $4)`,
		msg.MessageID, msg.RoutingKey, msg.Body, msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox row: %w", err)
	}
	return nil
}

const (
	defaultPollInterval = 2 * time.Second
	defaultBatchSize    = 50
	defaultMaxAttempts  = 10

	backoffBase = 2 * time.Second
	backoffCap  = 5 * time.Minute
)

// OutboxWorker drains pending outbox rows to the bus. Rows are claimed with
// FOR UPDATE SKIP LOCKED so several replicas can poll the same table without
// publishing a row twice while one of them holds it.
type OutboxWorker struct {
	pool        *pgxpool.Pool
	publisher   book.EventPublisher
	log         zerolog.Logger
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

type WorkerOption func(*OutboxWorker)

func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *OutboxWorker) { w.interval = d }
}

func WithBatchSize(n int) WorkerOption {
	return func(w *OutboxWorker) { w.batchSize = n }
}

func WithMaxAttempts(n int) WorkerOption {
	return func(w *OutboxWorker) { w.maxAttempts = n }
}

func NewOutboxWorker(pool *pgxpool.Pool, publisher book.EventPublisher, log zerolog.Logger, opts ...WorkerOption) *OutboxWorker {
	w := &OutboxWorker{
		pool:        pool,
		publisher:   publisher,
		log:         log.With().Str("component", "outbox_worker").Logger(),
		interval:    defaultPollInterval,
		batchSize:   defaultBatchSize,
		maxAttempts: defaultMaxAttempts,
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *OutboxWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info().Dur("interval", w.interval).Msg("outbox worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopped")
			return
		case <-ticker.C:
			if err := w.tick(ctx); err != nil {
				w.log.Error().Err(err).Msg("outbox tick failed")
			}
			w.samplePending(ctx)
		}
	}
}

type outboxRow struct {
	id         int64
	messageID  string
	routingKey string
	payload    []byte
	attempts   int
}

func (w *OutboxWorker) tick(ctx context.Context) error {
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	rows, err := tx.Query(ctx, `
		SELECT id, message_id, routing_key, payload, attempts
		FROM book_outbox
		WHERE status = 'pending' AND next_attempt_at <= now()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED`,
		w.batchSize)
	if err != nil {
		return fmt.Errorf("claim outbox rows: %w", err)
	}

	var batch []outboxRow
	for rows.Next() {
		var r outboxRow
		if err := rows.Scan(&r.id, &r.messageID, &r.routingKey, &r.payload, &r.attempts); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		batch = append(batch, r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return tx.Commit(ctx)
	}

	for _, r := range batch {
		if err := w.publisher.PublishEvent(ctx, r.routingKey, r.messageID, r.payload); err != nil {
			metrics.EventsPublished.WithLabelValues(r.routingKey, "error").Inc()
			w.fail(ctx, tx, r, err)
			continue
		}
		metrics.EventsPublished.WithLabelValues(r.routingKey, "ok").Inc()
		if _, err := tx.Exec(ctx,
			`UPDATE book_outbox SET status = 'sent', sent_at = now() WHERE id = $1`, r.id); err != nil {
			return fmt.Errorf("mark outbox row sent: %w", err)
		}
	}
	return tx.Commit(ctx)
}

// fail records a publish failure: schedule a retry with capped exponential
// backoff, or park the row as dead once attempts are exhausted.
func (w *OutboxWorker) fail(ctx context.Context, tx pgx.Tx, r outboxRow, cause error) {
	attempts := r.attempts + 1
	if attempts >= w.maxAttempts {
		w.log.Error().Err(cause).
			Str("message_id", r.messageID).
			Str("routing_key", r.routingKey).
			Int("attempts", attempts).
			Msg("outbox row dead lettered")
		if _, err := tx.Exec(ctx,
			`UPDATE book_outbox SET status = 'dead', attempts = $2, last_error = $3 WHERE id = $1`,
			r.id, attempts, cause.Error()); err != nil {
			w.log.Error().Err(err).Int64("outbox_id", r.id).Msg("failed to mark outbox row dead")
		}
		return
	}

	delay := nextBackoff(attempts)
	w.log.Warn().Err(cause).
		Str("message_id", r.messageID).
		Int("attempts", attempts).
		Dur("retry_in", delay).
		Msg("outbox publish failed, will retry")
	if _, err := tx.Exec(ctx, `
		UPDATE book_outbox
		SET attempts = $2, last_error = $3, next_attempt_at = now() + $4
		WHERE id = $1`,
		r.id, attempts, cause.Error(), delay); err != nil {
		w.log.Error().Err(err).Int64("outbox_id", r.id).Msg("failed to reschedule outbox row")
	}
}

// nextBackoff doubles per attempt up to the cap, with up to 20% jitter so a
// burst of failures does not retry in lockstep.
func nextBackoff(attempt int) time.Duration {
	d := backoffBase << (attempt - 1)
	if d > backoffCap || d <= 0 {
		d = backoffCap
	}
	jitter := time.Duration(rand.Int63n(int64(d) / 5))
	return d + jitter
}

func (w *OutboxWorker) samplePending(ctx context.Context) {
	var pending int64
	if err := w.pool.QueryRow(ctx,
		`SELECT count(*) FROM book_outbox WHERE status = 'pending'`).Scan(&pending); err != nil {
		return
	}
	metrics.OutboxPending.Set(float64(pending))
}
