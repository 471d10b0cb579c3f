package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	ErrNotFound        = errors.New("cart not found")
	ErrLineNotFound    = errors.New("book is not in the cart")
	ErrInvalidQuantity = errors.New("quantity must be between 1 and 1000")
	// ErrCacheMiss is returned by a Cache that holds no entry for a user.
	ErrCacheMiss = errors.New("cart cache miss")
)

// MaxQuantity caps the units of one book in a cart.
const MaxQuantity = 1000

// Cart is a user's pending selection of books. A user has at most one cart.
type Cart struct {
	UserID    string    `json:"userId"`
	Lines     []Line    `json:"lines"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Line is one book in a cart. PriceAtAdd is recorded once when the book is
// first added and never rewritten.
type Line struct {
	BookID     string          `json:"bookId"`
	Quantity   int             `json:"quantity"`
	PriceAtAdd decimal.Decimal `json:"priceAtAdd"`
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Lines) == 0
}

// Subtotal sums the lines at their snapshot prices.
func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range c.Lines {
		total = total.Add(l.PriceAtAdd.Mul(decimal.NewFromInt(int64(l.Quantity))))
	}
	return total
}

// Clone returns a deep copy so callers sharing a cached cart cannot mutate
// each other's lines.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = append([]Line(nil), c.Lines...)
	return &cp
}

func (c *Cart) indexOf(bookID string) int {
	for i, l := range c.Lines {
		if l.BookID == bookID {
			return i
		}
	}
	return -1
}

// Store is the view of carts available inside a checkout transaction.
type Store interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Delete(ctx context.Context, userID string) error
}

// Repository defines persistence operations for carts.
type Repository interface {
	Store
	// Save creates or replaces the user's cart.
	Save(ctx context.Context, c *Cart) error
}

// Cache is a read-through cache in front of the cart Repository.
type Cache interface {
	Get(ctx context.Context, userID string) (*Cart, error)
	Set(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, userID string) error
}

// NopCache is a Cache that never stores anything.
type NopCache struct{}

func (NopCache) Get(context.Context, string) (*Cart, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, *Cart) error           { return nil }
func (NopCache) Delete(context.Context, string) error       { return nil }
