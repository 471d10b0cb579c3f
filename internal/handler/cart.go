package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/cart"
)

type addItemRequest struct {
	BookID   string `json:"bookId"`
	Quantity int    `json:"quantity"`
}

type setQuantityRequest struct {
	Quantity int `json:"quantity"`
}

// GetCart returns the caller's cart. A user without a cart gets an empty
// one.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.carts.Get(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.cartResponse(r.Context(), c))
}

// AddCartItem adds copies of a book to the caller's cart. Quantity defaults
// to 1.
func (h *Handler) AddCartItem(w http.ResponseWriter, r *http.Request) {
	var req addItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.BookID = strings.TrimSpace(req.BookID)
	if req.BookID == "" {
		writeError(w, r, badRequest("bookId is required"))
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}

	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.carts.AddItem(r.Context(), p.UserID, req.BookID, req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.cartResponse(r.Context(), c))
}

// UpdateCartItem sets the quantity of a book already in the cart. Zero
// removes it.
func (h *Handler) UpdateCartItem(w http.ResponseWriter, r *http.Request) {
	var req setQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.carts.SetQuantity(r.Context(), p.UserID, chi.URLParam(r, "bookId"), req.Quantity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.cartResponse(r.Context(), c))
}

// RemoveCartItem drops a book from the cart.
func (h *Handler) RemoveCartItem(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	c, err := h.carts.RemoveItem(r.Context(), p.UserID, chi.URLParam(r, "bookId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.cartResponse(r.Context(), c))
}

// ClearCart empties the caller's cart.
func (h *Handler) ClearCart(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	if err := h.carts.Clear(r.Context(), p.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cartResponse renders c with the current catalog entry of every line.
// Failing to load books only drops the book details.
func (h *Handler) cartResponse(ctx context.Context, c *cart.Cart) cartDTO {
	dto := toCartDTO(c)
	if len(c.Lines) == 0 {
		return dto
	}

	ids := make([]string, len(c.Lines))
	for i, l := range c.Lines {
		ids[i] = l.BookID
	}
	books, err := h.books.GetByIDs(ctx, ids)
	if err != nil {
		zctx.From(ctx).Warn("resolve cart books", zap.String("user_id", c.UserID), zap.Error(err))
		return dto
	}

	byID := make(map[string]bookDTO, len(books))
	for i := range books {
		byID[books[i].ID] = h.toBookDTO(&books[i])
	}
	for i := range dto.Lines {
		if b, ok := byID[dto.Lines[i].BookID]; ok {
			dto.Lines[i].Book = &b
		}
	}
	return dto
}
