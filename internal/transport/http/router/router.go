package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bookmesh/ebookstore/internal/config"
	"github.com/bookmesh/ebookstore/internal/transport/http/handlers"
	authmw "github.com/bookmesh/ebookstore/internal/transport/http/middleware"
)

func New(
	h *handlers.BooksHandler,
	auth *authmw.AuthMiddleware,
	z *handlers.HealthHandler,
	cfg *config.Config,
) http.Handler {
	r := chi.NewRouter()

	r.Use(authmw.RequestID)
	r.Use(authmw.SecurityHeaders)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(authmw.AccessLog)

	if cfg.RLEnabled {
		r.Use(httprate.LimitByIP(cfg.RLLimit, cfg.RLWindow))
	}

	r.Get("/healthz", z.Healthz)
	r.Get("/readyz", z.Readyz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/book/v1", func(r chi.Router) {
		r.Get("/books", h.ListPublic)
		r.Get("/books/{book_id}", h.GetPublic)
		r.Get("/book-states", h.States)

		r.Group(func(r chi.Router) {
			r.Use(auth.Require)

			r.Post("/books", h.Create)
			r.Get("/my/books", h.ListMine)
			r.Get("/my/books/{book_id}", h.GetMine)
			r.Get("/books/{book_id}/actions", h.Actions)

			r.Post("/books/{book_id}/submit", h.Submit)
			r.Post("/books/{book_id}/approve", h.Approve)
			r.Post("/books/{book_id}/reject", h.Reject)
			r.Post("/books/{book_id}/hide", h.Hide)
			r.Post("/books/{book_id}/deactivate", h.Deactivate)
			r.Post("/books/{book_id}/reactivate", h.Reactivate)
			r.Put("/books/{book_id}/discount", h.SetDiscount)

			r.Post("/books/{book_id}/wishlist", h.WishlistAdd)
			r.Delete("/books/{book_id}/wishlist", h.WishlistRemove)

			r.Get("/notifications", h.Notifications)
		})
	})

	return r
}
