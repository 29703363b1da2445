package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/bookmesh/ebookstore/internal/application/book"
	"github.com/bookmesh/ebookstore/internal/domain"
	"github.com/bookmesh/ebookstore/internal/transport/http/dto"
	"github.com/bookmesh/ebookstore/internal/transport/http/middleware"
	"github.com/bookmesh/ebookstore/internal/transport/http/response"
	"github.com/bookmesh/ebookstore/internal/transport/http/validate"
)

type Clock interface{ Now() time.Time }

type BooksHandler struct {
	svc   *book.Service
	clock Clock
}

func NewBooksHandler(svc *book.Service, clock Clock) *BooksHandler {
	return &BooksHandler{svc: svc, clock: clock}
}

func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	pageSize, _ := strconv.Atoi(q.Get("page_size"))
	return page, pageSize
}

func bookID(r *http.Request) (string, bool) {
	id := chi.URLParam(r, "book_id")
	return id, validate.IsUUID(id)
}

func (h *BooksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateBookReq
	if err := validate.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid json body"))
		return
	}
	price, err := decimal.NewFromString(req.Price)
	if err != nil {
		response.Err(w, r, domain.ErrValidationMeta("invalid field", map[string]string{
			"price": "must be a decimal string",
		}))
		return
	}

	b, err := h.svc.Create(r.Context(), book.CreateCmd{
		OwnerID:     middleware.UserID(r),
		Title:       req.Title,
		Author:      req.Author,
		Description: req.Description,
		Price:       price,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusCreated, dto.ToBookResp(b, h.clock.Now().UTC()))
}

func (h *BooksHandler) GetPublic(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	b, err := h.svc.GetPublic(r.Context(), id)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ToBookResp(b, h.clock.Now().UTC()))
}

func (h *BooksHandler) ListPublic(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	items, total, err := h.svc.ListPublic(r.Context(), page, pageSize)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	h.writePage(w, items, page, pageSize, total)
}

func (h *BooksHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	items, total, err := h.svc.ListMine(r.Context(), middleware.UserID(r), page, pageSize)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	h.writePage(w, items, page, pageSize, total)
}

func (h *BooksHandler) GetMine(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	b, err := h.svc.Get(r.Context(), id, middleware.UserID(r), domain.Role(middleware.Role(r)))
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ToBookResp(b, h.clock.Now().UTC()))
}

func (h *BooksHandler) writePage(w http.ResponseWriter, items []*domain.Book, page, pageSize, total int) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = book.DefaultPageSize
	}
	now := h.clock.Now().UTC()
	out := make([]dto.BookResp, 0, len(items))
	for _, b := range items {
		out = append(out, dto.ToBookResp(b, now))
	}
	response.Data(w, http.StatusOK, dto.PageResp[dto.BookResp]{
		Items:    out,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}

// States lists every lifecycle state, for admin dashboards and clients that
// render state filters.
func (h *BooksHandler) States(w http.ResponseWriter, r *http.Request) {
	states := domain.BookStates()
	out := make([]string, 0, len(states))
	for _, s := range states {
		out = append(out, string(s))
	}
	response.Data(w, http.StatusOK, out)
}

// Actions lists the lifecycle actions the caller may take on the book now.
func (h *BooksHandler) Actions(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	actions, err := h.svc.AllowedActions(r.Context(), id, middleware.UserID(r), domain.Role(middleware.Role(r)))
	if err != nil {
		response.Err(w, r, err)
		return
	}
	out := make([]string, 0, len(actions))
	for _, a := range actions {
		out = append(out, string(a))
	}
	response.Data(w, http.StatusOK, out)
}

// transition runs one lifecycle action endpoint. reasonRequired only gates
// the request shape; the domain re-validates.
func (h *BooksHandler) transition(w http.ResponseWriter, r *http.Request, action domain.Action, readReason bool) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}

	var reason string
	if readReason && r.ContentLength > 0 {
		var req dto.ReasonReq
		if err := validate.DecodeJSON(r, &req); err != nil {
			response.Err(w, r, domain.ErrValidation("invalid json body"))
			return
		}
		reason = req.Reason
	}

	b, err := h.svc.Transition(r.Context(), book.TransitionCmd{
		BookID:    id,
		ActorID:   middleware.UserID(r),
		ActorRole: domain.Role(middleware.Role(r)),
		Action:    action,
		Reason:    reason,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ToBookResp(b, h.clock.Now().UTC()))
}

func (h *BooksHandler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionAwait, false)
}

func (h *BooksHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionApprove, false)
}

func (h *BooksHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionReject, true)
}

func (h *BooksHandler) Hide(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionHide, false)
}

func (h *BooksHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionDeactivate, true)
}

func (h *BooksHandler) Reactivate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, domain.ActionReactivate, false)
}

func (h *BooksHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	var req dto.DiscountReq
	if err := validate.DecodeJSON(r, &req); err != nil {
		response.Err(w, r, domain.ErrValidation("invalid json body"))
		return
	}

	b, err := h.svc.SetDiscount(r.Context(), book.SetDiscountCmd{
		BookID:     id,
		ActorID:    middleware.UserID(r),
		ActorRole:  domain.Role(middleware.Role(r)),
		Percentage: req.Percentage,
		Start:      req.Start,
		End:        req.End,
	})
	if err != nil {
		response.Err(w, r, err)
		return
	}
	response.Data(w, http.StatusOK, dto.ToBookResp(b, h.clock.Now().UTC()))
}

func (h *BooksHandler) WishlistAdd(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	if err := h.svc.Wishlist(r.Context(), id, middleware.UserID(r)); err != nil {
		response.Err(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BooksHandler) WishlistRemove(w http.ResponseWriter, r *http.Request) {
	id, ok := bookID(r)
	if !ok {
		response.Err(w, r, domain.ErrValidationMeta("invalid path param", map[string]string{
			"book_id": "must be uuid",
		}))
		return
	}
	if err := h.svc.Unwishlist(r.Context(), id, middleware.UserID(r)); err != nil {
		response.Err(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BooksHandler) Notifications(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)
	items, total, err := h.svc.Notifications(r.Context(), middleware.UserID(r), page, pageSize)
	if err != nil {
		response.Err(w, r, err)
		return
	}
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = book.DefaultPageSize
	}
	out := make([]dto.NotificationResp, 0, len(items))
	for _, n := range items {
		out = append(out, dto.ToNotificationResp(n))
	}
	response.Data(w, http.StatusOK, dto.PageResp[dto.NotificationResp]{
		Items:    out,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	})
}
