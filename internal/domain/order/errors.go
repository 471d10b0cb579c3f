package order

import (
	"fmt"

	"github.com/go-faster/errors"
)

// Sentinel errors for order operations.
var (
	// ErrEmptyCart is returned when the caller has no cart or an empty one.
	ErrEmptyCart = errors.New("your cart is empty")
	ErrNotFound  = errors.New("order not found")
	// ErrDuplicateTransaction is returned when another order already carries
	// the external transaction id.
	ErrDuplicateTransaction = errors.New("an order with this transaction id already exists")
	ErrInvalidCursor        = errors.New("invalid cursor")
	// ErrStatusChanged is returned when the order's status was changed by
	// someone else between reading and updating it.
	ErrStatusChanged = errors.New("order status was changed concurrently, reload and retry")
	// ErrPaymentDeclined is returned by a Settler that refuses the order.
	ErrPaymentDeclined = errors.New("payment was declined")
)

// ItemNotFoundError indicates a cart line references a book that no longer
// exists.
type ItemNotFoundError struct {
	BookID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("book with id %s not found for checkout", e.BookID)
}

// InsufficientStockError indicates a cart line asks for more copies than
// are available.
type InsufficientStockError struct {
	BookID    string
	Title     string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("not enough stock for %q: available %d, requested %d", e.Title, e.Available, e.Requested)
}

// InvalidStatusError indicates a status value outside the known set.
type InvalidStatusError struct {
	Value string
}

func (e *InvalidStatusError) Error() string {
	return fmt.Sprintf("invalid order status %q", e.Value)
}

// InvalidTransitionError indicates a known status that the order cannot move
// to from its current one.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot change order status from %s to %s", e.From, e.To)
}

// ValidationError indicates a malformed checkout request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Field + " " + e.Reason
}

// StoreError wraps an underlying persistence failure. Its message carries the
// cause for logs and must not be shown to callers.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return "store failure: " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsCheckoutRejection reports whether err is a business-rule failure the
// caller can fix by changing the request or the cart.
func IsCheckoutRejection(err error) bool {
	var (
		notFound     *ItemNotFoundError
		insufficient *InsufficientStockError
		invalid      *ValidationError
	)
	return errors.Is(err, ErrEmptyCart) ||
		errors.Is(err, ErrDuplicateTransaction) ||
		errors.Is(err, ErrPaymentDeclined) ||
		errors.As(err, &notFound) ||
		errors.As(err, &insufficient) ||
		errors.As(err, &invalid)
}
