package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/outbox"
)

// Stores groups the repositories a checkout touches, all bound to the same
// transaction.
type Stores struct {
	Books  catalog.StockStore
	Carts  cart.Store
	Orders Store
	Outbox outbox.Writer
}

// UnitOfWork runs fn inside one atomic transaction. Every write made through
// the Stores passed to fn is committed when fn returns nil and rolled back
// otherwise.
type UnitOfWork interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error
}

// BookLookup resolves display fields for order lines.
type BookLookup interface {
	GetByIDs(ctx context.Context, ids []string) ([]catalog.Book, error)
}

// CartInvalidator drops cached carts after a checkout commits.
type CartInvalidator interface {
	Invalidate(ctx context.Context, userID string)
}

// Settler confirms payment for a new order and sets its status accordingly.
// Returning an error aborts the checkout.
type Settler interface {
	Settle(ctx context.Context, o *Order) error
}

// AssumePaid marks every order Paid without contacting a payment provider.
type AssumePaid struct{}

func (AssumePaid) Settle(_ context.Context, o *Order) error {
	o.Status = StatusPaid
	return nil
}

// ManualSettlement leaves orders Pending until an administrator advances
// them.
type ManualSettlement struct{}

func (ManualSettlement) Settle(context.Context, *Order) error { return nil }

// Option configures a Service.
type Option func(*Service)

// WithSettler replaces the default AssumePaid settler.
func WithSettler(s Settler) Option {
	return func(svc *Service) { svc.settler = s }
}

// WithMetrics records checkout outcomes.
func WithMetrics(m *Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// WithEvents appends an order.placed message to the outbox for every order.
func WithEvents(enabled bool) Option {
	return func(svc *Service) { svc.events = enabled }
}

// WithCartInvalidator drops the cached cart after each checkout.
func WithCartInvalidator(c CartInvalidator) Option {
	return func(svc *Service) { svc.carts = c }
}

// Service implements checkout and the order read and status operations.
type Service struct {
	uow     UnitOfWork
	orders  Repository
	books   BookLookup
	settler Settler
	carts   CartInvalidator
	metrics *Metrics
	events  bool
	now     func() time.Time
	newID   func() string
}

// NewService creates an order Service.
func NewService(uow UnitOfWork, orders Repository, books BookLookup, opts ...Option) *Service {
	s := &Service{
		uow:     uow,
		orders:  orders,
		books:   books,
		settler: AssumePaid{},
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns one order.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.resolveBooks(ctx, []Order{*o}); err != nil {
		return nil, err
	}
	return o, nil
}

// ListForUser returns the user's orders newest first, with each line's book
// display fields resolved.
func (s *Service) ListForUser(ctx context.Context, userID string) ([]Order, error) {
	orders, err := s.orders.ListByUser(ctx, userID)
	if err != nil {
		return nil, &StoreError{Op: "list orders", Err: err}
	}
	if err := s.resolveBooks(ctx, orders); err != nil {
		return nil, &StoreError{Op: "resolve books", Err: err}
	}
	return orders, nil
}

// Default and maximum page sizes for the administrative listing.
const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// List returns one page of all orders, newest first. cursor is the
// NextCursor of the previous page, or empty for the first page.
func (s *Service) List(ctx context.Context, status string, cursor string, limit int) (*ListPage, error) {
	p := ListParams{Limit: limit}
	if p.Limit <= 0 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, err
		}
		p.Status = st
	}
	if cursor != "" {
		c, err := DecodeCursor(cursor)
		if err != nil {
			return nil, err
		}
		p.After = c
	}

	// One extra row tells whether another page exists.
	probe := p
	probe.Limit++
	orders, err := s.orders.List(ctx, probe)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}

	page := &ListPage{Orders: orders}
	if len(orders) > p.Limit {
		page.Orders = orders[:p.Limit]
		last := page.Orders[p.Limit-1]
		page.NextCursor = Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	return page, nil
}

// UpdateStatus moves an order to the status named by raw. Unknown values
// fail with InvalidStatusError and disallowed moves with
// InvalidTransitionError; in both cases the order is left unchanged.
// Setting the current status again is a no-op. A concurrent change between
// the read and the write fails with ErrStatusChanged.
func (s *Service) UpdateStatus(ctx context.Context, id, raw string) (*Order, error) {
	next, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}

	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, &InvalidTransitionError{From: o.Status, To: next}
	}

	now := s.now()
	if err := s.orders.UpdateStatus(ctx, id, o.Status, next, now); err != nil {
		return nil, errors.Wrapf(err, "update order %s status", id)
	}
	o.Status = next
	o.UpdatedAt = now
	return o, nil
}

// resolveBooks attaches catalog display fields to every line in orders.
func (s *Service) resolveBooks(ctx context.Context, orders []Order) error {
	seen := make(map[string]struct{})
	var ids []string
	for _, o := range orders {
		for _, l := range o.Lines {
			if _, ok := seen[l.BookID]; !ok {
				seen[l.BookID] = struct{}{}
				ids = append(ids, l.BookID)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	books, err := s.books.GetByIDs(ctx, ids)
	if err != nil {
		return errors.Wrap(err, "get books")
	}
	byID := make(map[string]*BookSummary, len(books))
	for _, b := range books {
		byID[b.ID] = &BookSummary{
			Title:      b.Title,
			Author:     b.Author,
			CoverImage: b.CoverImage,
			Price:      b.Price,
		}
	}

	for i := range orders {
		for j := range orders[i].Lines {
			orders[i].Lines[j].Book = byID[orders[i].Lines[j].BookID]
		}
	}
	return nil
}
