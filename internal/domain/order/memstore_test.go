package order

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/go-faster/errors"

	"github.com/xenking/bookstore/internal/domain/cart"
	"github.com/xenking/bookstore/internal/domain/catalog"
	"github.com/xenking/bookstore/internal/outbox"
)

var errInjected = errors.New("injected store failure")

// memDB is an in-memory backing store. Transactions are serialized by mu and
// restore a snapshot when fn fails, so rollback is observable.
type memDB struct {
	mu     sync.Mutex
	books  map[string]catalog.Book
	carts  map[string]cart.Cart
	orders []Order
	events []outbox.Message

	// failOn names a transactional operation that fails: "orders.create",
	// "carts.delete", "outbox.append" or "books.decrement".
	failOn string

	// locked records the id sets passed to Lock, in call order.
	locked [][]string
}

func newMemDB() *memDB {
	return &memDB{
		books: make(map[string]catalog.Book),
		carts: make(map[string]cart.Cart),
	}
}

type snapshot struct {
	books  map[string]catalog.Book
	carts  map[string]cart.Cart
	orders []Order
	events []outbox.Message
}

func (db *memDB) snapshot() snapshot {
	carts := make(map[string]cart.Cart, len(db.carts))
	for k, c := range db.carts {
		carts[k] = *c.Clone()
	}
	return snapshot{
		books:  maps.Clone(db.books),
		carts:  carts,
		orders: slices.Clone(db.orders),
		events: slices.Clone(db.events),
	}
}

func (db *memDB) restore(s snapshot) {
	db.books, db.carts, db.orders, db.events = s.books, s.carts, s.orders, s.events
}

func (db *memDB) InTx(ctx context.Context, fn func(ctx context.Context, tx Stores) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	snap := db.snapshot()
	tx := memTx{db: db}
	if err := fn(ctx, Stores{Books: tx, Carts: tx, Orders: tx, Outbox: tx}); err != nil {
		db.restore(snap)
		return err
	}
	return nil
}

// memTx implements the transactional stores. The caller holds db.mu.
type memTx struct{ db *memDB }

func (t memTx) GetByID(_ context.Context, id string) (*catalog.Book, error) {
	b, ok := t.db.books[id]
	if !ok {
		return nil, catalog.ErrNotFound
	}
	return &b, nil
}

func (t memTx) Lock(_ context.Context, ids []string) error {
	t.db.locked = append(t.db.locked, ids)
	return nil
}

func (t memTx) DecrementStock(_ context.Context, id string, amount int) error {
	if t.db.failOn == "books.decrement" {
		return errInjected
	}
	if amount < 1 {
		return catalog.ErrInvalidAmount
	}
	b, ok := t.db.books[id]
	if !ok || b.Stock < amount {
		return catalog.ErrInsufficientStock
	}
	b.Stock -= amount
	t.db.books[id] = b
	return nil
}

func (t memTx) Get(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := t.db.carts[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c.Clone(), nil
}

func (t memTx) Delete(_ context.Context, userID string) error {
	if t.db.failOn == "carts.delete" {
		return errInjected
	}
	delete(t.db.carts, userID)
	return nil
}

func (t memTx) Create(_ context.Context, o *Order) error {
	if t.db.failOn == "orders.create" {
		return errInjected
	}
	if o.TransactionID != "" {
		for _, existing := range t.db.orders {
			if existing.TransactionID == o.TransactionID {
				return ErrDuplicateTransaction
			}
		}
	}
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	t.db.orders = append(t.db.orders, cp)
	return nil
}

func (t memTx) Append(_ context.Context, m outbox.Message) error {
	if t.db.failOn == "outbox.append" {
		return errInjected
	}
	m.ID = int64(len(t.db.events) + 1)
	t.db.events = append(t.db.events, m)
	return nil
}

// memRepo is the non-transactional order Repository and BookLookup.
type memRepo struct{ db *memDB }

func (r memRepo) Create(ctx context.Context, o *Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	return memTx(r).Create(ctx, o)
}

func (r memRepo) GetByID(_ context.Context, id string) (*Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for _, o := range r.db.orders {
		if o.ID == id {
			o.Lines = slices.Clone(o.Lines)
			return &o, nil
		}
	}
	return nil, ErrNotFound
}

func (r memRepo) newestFirst() []Order {
	out := slices.Clone(r.db.orders)
	slices.SortFunc(out, func(a, b Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	for i := range out {
		out[i].Lines = slices.Clone(out[i].Lines)
	}
	return out
}

func (r memRepo) ListByUser(_ context.Context, userID string) ([]Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []Order
	for _, o := range r.newestFirst() {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (r memRepo) List(_ context.Context, p ListParams) ([]Order, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []Order
	for _, o := range r.newestFirst() {
		if p.Status != "" && o.Status != p.Status {
			continue
		}
		if p.After != nil {
			older := o.CreatedAt.Before(p.After.CreatedAt) ||
				(o.CreatedAt.Equal(p.After.CreatedAt) && o.ID < p.After.ID)
			if !older {
				continue
			}
		}
		out = append(out, o)
		if len(out) == p.Limit {
			break
		}
	}
	return out, nil
}

func (r memRepo) UpdateStatus(_ context.Context, id string, from, to Status, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	for i := range r.db.orders {
		if r.db.orders[i].ID == id {
			if r.db.orders[i].Status != from {
				return ErrStatusChanged
			}
			r.db.orders[i].Status = to
			r.db.orders[i].UpdatedAt = at
			return nil
		}
	}
	return ErrNotFound
}

func (r memRepo) GetByIDs(_ context.Context, ids []string) ([]catalog.Book, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	var out []catalog.Book
	for _, id := range ids {
		if b, ok := r.db.books[id]; ok {
			out = append(out, b)
		}
	}
	return out, nil
}

// stock returns the current stock of a book.
func (db *memDB) stock(id string) int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.books[id].Stock
}

func (db *memDB) hasCart(userID string) bool {
	db.mu.Lock()
	defer db.mu.Unlock()
	_, ok := db.carts[userID]
	return ok
}

func (db *memDB) orderCount() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.orders)
}
