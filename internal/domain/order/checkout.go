package order

import (
	"context"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/postal"
	"github.com/xenking/bookstore/internal/outbox"
)

// EventOrderPlaced is the outbox message type written for every new order.
const EventOrderPlaced = "order.placed"

// CheckoutRequest holds the validated input for Checkout. A zero
// BillingAddress means "same as shipping".
type CheckoutRequest struct {
	UserID          string
	ShippingAddress postal.Address
	BillingAddress  postal.Address
	PaymentMethod   string
	TransactionID   string
}

// Normalize trims free-text fields and applies address defaults.
func (r CheckoutRequest) Normalize() CheckoutRequest {
	r.UserID = strings.TrimSpace(r.UserID)
	r.ShippingAddress = r.ShippingAddress.Normalize()
	if r.BillingAddress.IsZero() {
		r.BillingAddress = r.ShippingAddress
	} else {
		r.BillingAddress = r.BillingAddress.Normalize()
	}
	r.PaymentMethod = strings.TrimSpace(r.PaymentMethod)
	r.TransactionID = strings.TrimSpace(r.TransactionID)
	return r
}

// Validate checks required fields. Call it on a normalized request.
func (r CheckoutRequest) Validate() error {
	if r.UserID == "" {
		return &ValidationError{Field: "userId", Reason: "is required"}
	}
	if missing := r.ShippingAddress.Missing(); len(missing) > 0 {
		return &ValidationError{Field: "shippingAddress." + missing[0], Reason: "is required"}
	}
	if missing := r.BillingAddress.Missing(); len(missing) > 0 {
		return &ValidationError{Field: "billingAddress." + missing[0], Reason: "is required"}
	}
	return nil
}

// Checkout converts the user's cart into an order. Stock for every line is
// re-read and conditionally decremented, the order is created and settled,
// and the cart is deleted, all in one transaction. On any error nothing is
// persisted. Business failures are returned as ErrEmptyCart,
// *ItemNotFoundError or *InsufficientStockError; persistence failures as
// *StoreError.
func (s *Service) Checkout(ctx context.Context, req CheckoutRequest) (_ *Order, err error) {
	start := s.now()
	defer func() { s.metrics.observe(ctx, err, time.Since(start)) }()

	req = req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, err
	}

	var placed *Order
	err = s.uow.InTx(ctx, func(ctx context.Context, tx Stores) error {
		o, err := s.place(ctx, tx, req)
		if err != nil {
			return err
		}
		placed = o
		return nil
	})
	if err != nil {
		if IsCheckoutRejection(err) {
			return nil, err
		}
		return nil, &StoreError{Op: "checkout", Err: err}
	}

	if s.carts != nil {
		s.carts.Invalidate(ctx, req.UserID)
	}

	zctx.From(ctx).Info("order placed",
		zap.String("order_id", placed.ID),
		zap.String("user_id", placed.UserID),
		zap.Int("lines", len(placed.Lines)),
		zap.String("total", placed.Total.StringFixed(2)),
		zap.String("status", string(placed.Status)),
	)
	return placed, nil
}

// place runs the checkout steps against transactional stores.
func (s *Service) place(ctx context.Context, tx Stores, req CheckoutRequest) (*Order, error) {
	c, err := tx.Carts.Get(ctx, req.UserID)
	if err != nil {
		if errors.Is(err, cart.ErrNotFound) {
			return nil, ErrEmptyCart
		}
		return nil, errors.Wrap(err, "get cart")
	}
	if c.IsEmpty() {
		return nil, ErrEmptyCart
	}

	ids := make([]string, len(c.Lines))
	for i, cl := range c.Lines {
		ids[i] = cl.BookID
	}
	slices.Sort(ids)
	if err := tx.Books.Lock(ctx, slices.Compact(ids)); err != nil {
		return nil, errors.Wrap(err, "lock books")
	}

	lines := make([]Line, 0, len(c.Lines))
	total := decimal.Zero
	for _, cl := range c.Lines {
		line, err := s.reserve(ctx, tx.Books, cl)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
		total = total.Add(line.Subtotal())
	}

	now := s.now()
	o := &Order{
		ID:              s.newID(),
		UserID:          req.UserID,
		Lines:           lines,
		Total:           total,
		ShippingAddress: req.ShippingAddress,
		BillingAddress:  req.BillingAddress,
		PaymentMethod:   req.PaymentMethod,
		TransactionID:   req.TransactionID,
		Status:          StatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.settler.Settle(ctx, o); err != nil {
		return nil, errors.Wrap(err, "settle payment")
	}

	if err := tx.Orders.Create(ctx, o); err != nil {
		if errors.Is(err, ErrDuplicateTransaction) {
			return nil, ErrDuplicateTransaction
		}
		return nil, errors.Wrap(err, "create order")
	}

	if s.events {
		msg, err := outbox.NewMessage(EventOrderPlaced, o.ID, newPlacedEvent(o))
		if err != nil {
			return nil, err
		}
		if err := tx.Outbox.Append(ctx, msg); err != nil {
			return nil, errors.Wrap(err, "append order event")
		}
	}

	if err := tx.Carts.Delete(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "delete cart")
	}

	return o, nil
}

// reserve re-reads the book behind a cart line, takes the requested units
// out of stock, and prices the line at the book's current price.
func (s *Service) reserve(ctx context.Context, books catalog.StockStore, cl cart.Line) (Line, error) {
	if cl.Quantity < 1 || cl.Quantity > cart.MaxQuantity {
		return Line{}, &ValidationError{
			Field:  "items." + cl.BookID + ".quantity",
			Reason: "must be between 1 and " + strconv.Itoa(cart.MaxQuantity),
		}
	}

	b, err := books.GetByID(ctx, cl.BookID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Line{}, &ItemNotFoundError{BookID: cl.BookID}
		}
		return Line{}, errors.Wrapf(err, "get book %s", cl.BookID)
	}

	insufficient := &InsufficientStockError{
		BookID:    b.ID,
		Title:     b.Title,
		Available: b.Stock,
		Requested: cl.Quantity,
	}
	if b.Stock < cl.Quantity {
		return Line{}, insufficient
	}
	if err := books.DecrementStock(ctx, b.ID, cl.Quantity); err != nil {
		if errors.Is(err, catalog.ErrInsufficientStock) {
			return Line{}, insufficient
		}
		return Line{}, errors.Wrapf(err, "decrement stock for %s", b.ID)
	}

	return Line{
		BookID:          b.ID,
		Quantity:        cl.Quantity,
		PriceAtPurchase: b.Price,
	}, nil
}

// placedEvent is the order.placed message payload.
type placedEvent struct {
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Total     decimal.Decimal `json:"total"`
	Status    Status          `json:"status"`
	Lines     []Line          `json:"lines"`
	CreatedAt time.Time       `json:"createdAt"`
}

func newPlacedEvent(o *Order) placedEvent {
	return placedEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Status:    o.Status,
		Lines:     o.Lines,
		CreatedAt: o.CreatedAt,
	}
}
