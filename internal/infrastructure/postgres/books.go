package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/bookmesh/ebookstore/internal/application/book"
	"github.com/bookmesh/ebookstore/internal/domain"
)

const bookColumns = `
	id, owner_id, title, author, description, price::text,
	discount_percentage, discount_start, discount_end,
	state, prior_state, deletion_reason, rejection_reason,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(row rowScanner) (*domain.Book, error) {
	var (
		b     domain.Book
		price string
		state string
		prior *string
	)
	err := row.Scan(
		&b.ID, &b.OwnerID, &b.Title, &b.Author, &b.Description, &price,
		&b.DiscountPercentage, &b.DiscountStart, &b.DiscountEnd,
		&state, &prior, &b.DeletionReason, &b.RejectionReason,
		&b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound("book not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan book: %w", err)
	}

	b.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	b.State = domain.BookState(state)
	if prior != nil {
		b.PriorState = domain.BookState(*prior)
	}
	return &b, nil
}

func priorStateArg(b *domain.Book) *string {
	if b.PriorState == "" {
		return nil
	}
	s := string(b.PriorState)
	return &s
}

func (s *Store) Create(ctx context.Context, b *domain.Book) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO books (
			id, owner_id, title, author, description, price,
			discount_percentage, discount_start, discount_end,
			state, prior_state, deletion_reason, rejection_reason,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		b.ID, b.OwnerID, b.Title, b.Author, b.Description, b.Price.String(),
		b.DiscountPercentage, b.DiscountStart, b.DiscountEnd,
		string(b.State), priorStateArg(b), b.DeletionReason, b.RejectionReason,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert book: %w", err)
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id string) (*domain.Book, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id)
	return scanBook(row)
}

func (s *Store) ListApproved(ctx context.Context, page, pageSize int) ([]*domain.Book, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM books WHERE state = 'approved'`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count approved books: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE state = 'approved'
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`,
		pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list approved books: %w", err)
	}
	defer rows.Close()

	out, err := collectBooks(rows)
	return out, total, err
}

func (s *Store) ListByOwner(ctx context.Context, ownerID string, page, pageSize int) ([]*domain.Book, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM books WHERE owner_id = $1`, ownerID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count owner books: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+bookColumns+`
		FROM books
		WHERE owner_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		ownerID, pageSize, (page-1)*pageSize)
	if err != nil {
		return nil, 0, fmt.Errorf("list owner books: %w", err)
	}
	defer rows.Close()

	out, err := collectBooks(rows)
	return out, total, err
}

func collectBooks(rows pgx.Rows) ([]*domain.Book, error) {
	out := make([]*domain.Book, 0, 16)
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// WithTx runs fn inside a transaction. Any error rolls everything back,
// including staged outbox rows.
func (s *Store) WithTx(ctx context.Context, fn func(book.TxBookRepo) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(&txStore{tx: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

type txStore struct {
	tx pgx.Tx
}

// GetByIDForUpdate locks the row for the rest of the transaction, so
// concurrent transitions on the same book serialize.
func (t *txStore) GetByIDForUpdate(ctx context.Context, id string) (*domain.Book, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id)
	return scanBook(row)
}

func (t *txStore) Update(ctx context.Context, b *domain.Book) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE books SET
			title = $2, author = $3, description = $4, price = $5,
			discount_percentage = $6, discount_start = $7, discount_end = $8,
			state = $9, prior_state = $10, deletion_reason = $11, rejection_reason = $12,
			updated_at = $13
		WHERE id = $1`,
		b.ID, b.Title, b.Author, b.Description, b.Price.String(),
		b.DiscountPercentage, b.DiscountStart, b.DiscountEnd,
		string(b.State), priorStateArg(b), b.DeletionReason, b.RejectionReason,
		b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update book: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound("book not found")
	}
	return nil
}
