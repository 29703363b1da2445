// Package book implements the lifecycle use cases around a book listing:
// creation, moderation transitions, discounts, wishlists and the outbox
// staging of domain events.
package book

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bookmesh/ebookstore/internal/domain"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100

	bookCacheTTL = 5 * time.Minute
)

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type Service struct {
	repo      BookRepo
	wishlists WishlistRepo
	notifs    NotificationReader
	cache     Cache
	cacheTTL  time.Duration
	clock     Clock
	log       zerolog.Logger
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithCacheTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.cacheTTL = d
		}
	}
}

func NewService(repo BookRepo, wishlists WishlistRepo, notifs NotificationReader, log zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		wishlists: wishlists,
		notifs:    notifs,
		cacheTTL:  bookCacheTTL,
		clock:     realClock{},
		log:       log.With().Str("component", "book_service").Logger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

func cacheKeyBook(id string) string { return "book:details:" + id }

// invalidate drops the cached public view after a committed write. Best
// effort: a stale entry expires via TTL anyway.
func (s *Service) invalidate(ctx context.Context, bookID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cacheKeyBook(bookID)); err != nil {
		s.log.Warn().Err(err).Str("book_id", bookID).Msg("cache invalidation failed")
	}
}

// canModerate reports whether the role may see non-public books it does not
// own.
func canModerate(role domain.Role) bool {
	return role == domain.RoleModerator || role == domain.RoleAdmin
}
