package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/auth"
	"github.com/xenking/bookstore/internal/domain/order"
	"github.com/xenking/bookstore/internal/domain/postal"
)

// idempotencyHeader lets clients retry a checkout without placing a second
// order.
const idempotencyHeader = "Idempotency-Key"

type checkoutRequest struct {
	ShippingAddress *postal.Address `json:"shippingAddress"`
	BillingAddress  *postal.Address `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	TransactionID   string          `json:"transactionId"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// Checkout turns the caller's cart into an order. Both addresses default to
// the profile address; without one, billing falls back to shipping.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	p, _ := auth.PrincipalFrom(ctx)

	in := order.CheckoutRequest{
		UserID:        p.UserID,
		PaymentMethod: req.PaymentMethod,
		TransactionID: req.TransactionID,
	}
	var profile postal.Address
	if u := currentUser(ctx); u != nil {
		profile = u.Address
	}
	in.ShippingAddress = orProfile(req.ShippingAddress, profile)
	in.BillingAddress = orProfile(req.BillingAddress, profile)

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if key != "" && h.idempotency != nil {
		if err := h.idempotency.Reserve(ctx, p.UserID, key); err != nil {
			writeError(w, r, err)
			return
		}
	}

	o, err := h.orders.Checkout(ctx, in)
	if err != nil {
		if key != "" && h.idempotency != nil {
			if rerr := h.idempotency.Release(ctx, p.UserID, key); rerr != nil {
				zctx.From(ctx).Warn("release idempotency key", zap.String("key", key), zap.Error(rerr))
			}
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, h.toOrderDTO(o))
}

// orProfile returns the requested address, or the profile address when none
// was sent.
func orProfile(requested *postal.Address, profile postal.Address) postal.Address {
	if requested != nil && !requested.IsZero() {
		return *requested
	}
	return profile
}

// MyOrders lists the caller's orders, newest first.
func (h *Handler) MyOrders(w http.ResponseWriter, r *http.Request) {
	p, _ := auth.PrincipalFrom(r.Context())
	orders, err := h.orders.ListForUser(r.Context(), p.UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toOrderDTOs(orders))
}

// ListOrders returns one page of all orders. Query parameters: status,
// cursor, limit.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := intParam(q.Get("limit"), "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}

	page, err := h.orders.List(r.Context(), q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, orderPageDTO{
		Orders:     h.toOrderDTOs(page.Orders),
		NextCursor: page.NextCursor,
	})
}

// GetOrder returns any order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toOrderDTO(o))
}

// UpdateOrderStatus moves an order to a new status.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.orders.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, h.toOrderDTO(o))
}
