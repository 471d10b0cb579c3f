package order

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/bookstore/internal/domain/postal"
)

// Status is the lifecycle state of an order.
type Status string

// Order statuses. Delivered, Cancelled and Refunded are terminal.
const (
	StatusPending    Status = "Pending"
	StatusProcessing Status = "Processing"
	StatusPaid       Status = "Paid"
	StatusShipped    Status = "Shipped"
	StatusDelivered  Status = "Delivered"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
)

// fulfilment is the main line of the state machine, in order.
var fulfilment = []Status{StatusPending, StatusProcessing, StatusPaid, StatusShipped, StatusDelivered}

// Statuses lists every valid status.
func Statuses() []Status {
	return append(append([]Status(nil), fulfilment...), StatusCancelled, StatusRefunded)
}

// ParseStatus converts s into a Status, rejecting values outside the fixed
// enumeration.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", &InvalidStatusError{Value: s}
}

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusRefunded:
		return true
	}
	return false
}

func (s Status) rank() int {
	for i, st := range fulfilment {
		if st == s {
			return i
		}
	}
	return -1
}

// CanTransitionTo reports whether an order in status s may move to next.
// Orders move forward along Pending, Processing, Paid, Shipped, Delivered
// and may be cancelled or refunded from any non-terminal status.
func (s Status) CanTransitionTo(next Status) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StatusCancelled || next == StatusRefunded {
		return true
	}
	from, to := s.rank(), next.rank()
	return from >= 0 && to > from
}

// Order is a finalized purchase. Lines and prices never change after
// creation; only Status does.
type Order struct {
	ID              string
	UserID          string
	Lines           []Line
	Total           decimal.Decimal
	ShippingAddress postal.Address
	BillingAddress  postal.Address
	PaymentMethod   string
	TransactionID   string
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Line is a single purchased book.
type Line struct {
	BookID          string          `json:"bookId"`
	Quantity        int             `json:"quantity"`
	PriceAtPurchase decimal.Decimal `json:"priceAtPurchase"`

	// Book holds display fields resolved on read. It is not stored.
	Book *BookSummary `json:"-"`
}

// Subtotal is the line's quantity times its purchase price.
func (l Line) Subtotal() decimal.Decimal {
	return l.PriceAtPurchase.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// BookSummary is the catalog data shown next to an order line.
type BookSummary struct {
	Title      string
	Author     string
	CoverImage string
	Price      decimal.Decimal
}

// SumLines returns the exact sum of all line subtotals.
func SumLines(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Cursor marks a position in the newest-first order listing.
type Cursor struct {
	CreatedAt time.Time `json:"t"`
	ID        string    `json:"id"`
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	b, _ := json.Marshal(c)
	return base64.RawURLEncoding.EncodeToString(b)
}

// DecodeCursor parses a token produced by Cursor.Encode.
func DecodeCursor(token string) (*Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, ErrInvalidCursor
	}
	var c Cursor
	if err := json.Unmarshal(b, &c); err != nil || c.ID == "" {
		return nil, ErrInvalidCursor
	}
	return &c, nil
}

// ListParams filters the administrative order listing.
type ListParams struct {
	Status Status
	After  *Cursor
	Limit  int
}

// ListPage is one page of the administrative order listing.
type ListPage struct {
	Orders     []Order
	NextCursor string
}

// Store is the view of orders available inside a checkout transaction.
type Store interface {
	Create(ctx context.Context, o *Order) error
}

// Repository defines persistence operations for orders.
type Repository interface {
	Store
	GetByID(ctx context.Context, id string) (*Order, error)
	// ListByUser returns the user's orders, newest first.
	ListByUser(ctx context.Context, userID string) ([]Order, error)
	// List returns up to p.Limit orders older than p.After, newest first.
	List(ctx context.Context, p ListParams) ([]Order, error)
	// UpdateStatus moves the order from status from to status to. It fails
	// with ErrStatusChanged when the stored status is no longer from.
	UpdateStatus(ctx context.Context, id string, from, to Status, at time.Time) error
}
