package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bookmesh/ebookstore/internal/application/book"
	"github.com/bookmesh/ebookstore/internal/domain"
	appctx "github.com/bookmesh/ebookstore/internal/pkg/context"
)

type stubClock struct{ now time.Time }

func (c stubClock) Now() time.Time { return c.now }

type stubRepo struct {
	books  map[string]*domain.Book
	outbox []book.OutboxMessage
}

func newStubRepo() *stubRepo { return &stubRepo{books: map[string]*domain.Book{}} }

func (m *stubRepo) Create(_ context.Context, b *domain.Book) error {
	cp := *b
	m.books[b.ID] = &cp
	return nil
}

func (m *stubRepo) GetByID(_ context.Context, id string) (*domain.Book, error) {
	b, ok := m.books[id]
	if !ok {
		return nil, domain.ErrNotFound("book not found")
	}
	cp := *b
	return &cp, nil
}

func (m *stubRepo) ListApproved(_ context.Context, _, _ int) ([]*domain.Book, int, error) {
	var out []*domain.Book
	for _, b := range m.books {
		if b.State == domain.StateApproved {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *stubRepo) ListByOwner(_ context.Context, ownerID string, _, _ int) ([]*domain.Book, int, error) {
	var out []*domain.Book
	for _, b := range m.books {
		if b.OwnerID == ownerID {
			cp := *b
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func (m *stubRepo) WithTx(_ context.Context, fn func(book.TxBookRepo) error) error { return fn(m) }

func (m *stubRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Book, error) {
	return m.GetByID(ctx, id)
}

func (m *stubRepo) Update(_ context.Context, b *domain.Book) error {
	cp := *b
	m.books[b.ID] = &cp
	return nil
}

func (m *stubRepo) InsertOutbox(_ context.Context, msg book.OutboxMessage) error {
	m.outbox = append(m.outbox, msg)
	return nil
}

func (m *stubRepo) Add(context.Context, string, string) error    { return nil }
func (m *stubRepo) Remove(context.Context, string, string) error { return nil }

func (m *stubRepo) ListByUser(context.Context, string, int, int) ([]*domain.Notification, int, error) {
	return nil, 0, nil
}

func newTestHandler(t *testing.T) (*BooksHandler, *stubRepo) {
	t.Helper()
	repo := newStubRepo()
	clock := stubClock{now: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)}
	svc := book.NewService(repo, repo, repo, zerolog.Nop(), book.WithClock(clock))
	return NewBooksHandler(svc, clock), repo
}

// asUser simulates the auth middleware having populated the context.
func asUser(r *http.Request, uid, role string) *http.Request {
	return r.WithContext(appctx.WithUser(r.Context(), uid, role))
}

func withBookID(r *http.Request, id string) *http.Request {
	rc := chi.NewRouteContext()
	rc.URLParams.Add("book_id", id)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rc))
}

func decodeBook(t *testing.T, body *bytes.Buffer) map[string]any {
	t.Helper()
	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body.Bytes(), &env))
	return env.Data
}

func TestCreate(t *testing.T) {
	h, repo := newTestHandler(t)

	t.Run("created", func(t *testing.T) {
		payload := `{"title":"Go Brick by Brick","author":"M. Tsai","price":"42.50"}`
		r := httptest.NewRequest(http.MethodPost, "/book/v1/books", bytes.NewBufferString(payload))
		r = asUser(r, "owner-1", "user")
		w := httptest.NewRecorder()
		h.Create(w, r)

		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
		data := decodeBook(t, w.Body)
		assert.Equal(t, "draft", data["state"])
		assert.Equal(t, "42.50", data["price"])
		assert.Len(t, repo.books, 1)
	})

	t.Run("bad_price", func(t *testing.T) {
		payload := `{"title":"T","author":"A","price":"lots"}`
		r := httptest.NewRequest(http.MethodPost, "/book/v1/books", bytes.NewBufferString(payload))
		r = asUser(r, "owner-1", "user")
		w := httptest.NewRecorder()
		h.Create(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown_field_rejected", func(t *testing.T) {
		payload := `{"title":"T","author":"A","price":"1.00","surprise":true}`
		r := httptest.NewRequest(http.MethodPost, "/book/v1/books", bytes.NewBufferString(payload))
		r = asUser(r, "owner-1", "user")
		w := httptest.NewRecorder()
		h.Create(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func seed(t *testing.T, repo *stubRepo, state domain.BookState) *domain.Book {
	t.Helper()
	b, err := domain.NewDraft("owner-1", "Seeded", "A", "", decimal.RequireFromString("10.00"),
		time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	b.State = state
	require.NoError(t, repo.Create(context.Background(), b))
	return b
}

func TestGetPublic(t *testing.T) {
	h, repo := newTestHandler(t)
	approved := seed(t, repo, domain.StateApproved)
	draft := seed(t, repo, domain.StateDraft)

	t.Run("approved_found", func(t *testing.T) {
		r := withBookID(httptest.NewRequest(http.MethodGet, "/", nil), approved.ID)
		w := httptest.NewRecorder()
		h.GetPublic(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("draft_hidden_from_public", func(t *testing.T) {
		r := withBookID(httptest.NewRequest(http.MethodGet, "/", nil), draft.ID)
		w := httptest.NewRecorder()
		h.GetPublic(w, r)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("bad_uuid", func(t *testing.T) {
		r := withBookID(httptest.NewRequest(http.MethodGet, "/", nil), "not-a-uuid")
		w := httptest.NewRecorder()
		h.GetPublic(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestTransitionEndpoints(t *testing.T) {
	t.Run("approve_as_moderator", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateAwaitingApproval)

		r := withBookID(httptest.NewRequest(http.MethodPost, "/", nil), b.ID)
		r = asUser(r, "mod-1", "moderator")
		w := httptest.NewRecorder()
		h.Approve(w, r)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := decodeBook(t, w.Body)
		assert.Equal(t, "approved", data["state"])
	})

	t.Run("approve_as_user_forbidden", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateAwaitingApproval)

		r := withBookID(httptest.NewRequest(http.MethodPost, "/", nil), b.ID)
		r = asUser(r, "owner-1", "user")
		w := httptest.NewRecorder()
		h.Approve(w, r)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("reject_requires_reason", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateAwaitingApproval)

		r := withBookID(httptest.NewRequest(http.MethodPost, "/", nil), b.ID)
		r = asUser(r, "mod-1", "moderator")
		w := httptest.NewRecorder()
		h.Reject(w, r)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("reject_with_reason", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateAwaitingApproval)

		body := bytes.NewBufferString(`{"reason":"plagiarism"}`)
		r := httptest.NewRequest(http.MethodPost, "/", body)
		r.ContentLength = int64(body.Len())
		r = withBookID(r, b.ID)
		r = asUser(r, "mod-1", "moderator")
		w := httptest.NewRecorder()
		h.Reject(w, r)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		data := decodeBook(t, w.Body)
		assert.Equal(t, "rejected", data["state"])
		assert.Equal(t, "plagiarism", data["rejection_reason"])
	})

	t.Run("deactivate_emits_event", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateApproved)

		body := bytes.NewBufferString(`{"reason":"copyright"}`)
		r := httptest.NewRequest(http.MethodPost, "/", body)
		r.ContentLength = int64(body.Len())
		r = withBookID(r, b.ID)
		r = asUser(r, "admin-1", "admin")
		w := httptest.NewRecorder()
		h.Deactivate(w, r)

		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		require.Len(t, repo.outbox, 1)
		assert.Equal(t, "book.deactivated", repo.outbox[0].RoutingKey)
	})

	t.Run("hide_from_draft_conflicts", func(t *testing.T) {
		h, repo := newTestHandler(t)
		b := seed(t, repo, domain.StateDraft)

		r := withBookID(httptest.NewRequest(http.MethodPost, "/", nil), b.ID)
		r = asUser(r, "owner-1", "user")
		w := httptest.NewRecorder()
		h.Hide(w, r)
		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestSetDiscountEndpoint(t *testing.T) {
	h, repo := newTestHandler(t)
	b := seed(t, repo, domain.StateApproved)

	payload := `{"percentage":20,"start":"2026-03-01T00:00:00Z","end":"2026-03-10T00:00:00Z"}`
	r := httptest.NewRequest(http.MethodPut, "/", bytes.NewBufferString(payload))
	r = withBookID(r, b.ID)
	r = asUser(r, "owner-1", "user")
	w := httptest.NewRecorder()
	h.SetDiscount(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := decodeBook(t, w.Body)
	// clock sits inside the window
	assert.Equal(t, "8.00", data["effective_price"])
	require.Len(t, repo.outbox, 1)
	assert.Equal(t, "book.discounted", repo.outbox[0].RoutingKey)
}

func TestStates(t *testing.T) {
	h, _ := newTestHandler(t)
	w := httptest.NewRecorder()
	h.States(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t,
		`{"data":["draft","awaiting_approval","approved","rejected","hidden","deactivated"]}`,
		w.Body.String())
}
