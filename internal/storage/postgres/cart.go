package postgres

import (
	"context"
	"encoding/json"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/cart"
)

const (
	getCartSQL          = `SELECT user_id, lines, updated_at FROM carts WHERE user_id = $1`
	getCartForUpdateSQL = getCartSQL + ` FOR UPDATE`

	saveCartSQL = `INSERT INTO carts (user_id, lines, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE SET lines = EXCLUDED.lines, updated_at = EXCLUDED.updated_at`

	deleteCartSQL = `DELETE FROM carts WHERE user_id = $1`
)

var _ cart.Repository = (*CartRepository)(nil)

// CartRepository implements cart.Repository backed by PostgreSQL. Lines are
// stored as a JSONB array in insertion order.
type CartRepository struct {
	q      querier
	getSQL string
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{q: pool, getSQL: getCartSQL}
}

// newLockingCartRepository locks the cart it reads so two checkouts by the
// same user run one after the other.
func newLockingCartRepository(tx pgx.Tx) *CartRepository {
	return &CartRepository{q: tx, getSQL: getCartForUpdateSQL}
}

// Get returns the user's cart or cart.ErrNotFound.
func (r *CartRepository) Get(ctx context.Context, userID string) (*cart.Cart, error) {
	var (
		c     cart.Cart
		lines []byte
	)
	err := r.q.QueryRow(ctx, r.getSQL, userID).Scan(&c.UserID, &lines, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, cart.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get cart for %q", userID)
	}
	if err := json.Unmarshal(lines, &c.Lines); err != nil {
		return nil, errors.Wrapf(err, "decode cart lines for %q", userID)
	}
	return &c, nil
}

// Save creates or replaces the user's cart.
func (r *CartRepository) Save(ctx context.Context, c *cart.Cart) error {
	lines, err := json.Marshal(c.Lines)
	if err != nil {
		return errors.Wrap(err, "encode cart lines")
	}
	if _, err := r.q.Exec(ctx, saveCartSQL, c.UserID, lines, c.UpdatedAt); err != nil {
		return errors.Wrapf(err, "save cart for %q", c.UserID)
	}
	return nil
}

// Delete removes the user's cart. Deleting a missing cart is not an error.
func (r *CartRepository) Delete(ctx context.Context, userID string) error {
	if _, err := r.q.Exec(ctx, deleteCartSQL, userID); err != nil {
		return errors.Wrapf(err, "delete cart for %q", userID)
	}
	return nil
}
