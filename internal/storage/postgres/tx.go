package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/order"
)

var _ order.UnitOfWork = (*UnitOfWork)(nil)

// UnitOfWork runs checkouts in a single READ COMMITTED transaction. Books and
// carts read through the transaction are locked with FOR UPDATE, so
// concurrent checkouts touching the same rows serialize.
type UnitOfWork struct {
	pool *pgxpool.Pool
}

// NewUnitOfWork returns a UnitOfWork over pool.
func NewUnitOfWork(pool *pgxpool.Pool) *UnitOfWork {
	return &UnitOfWork{pool: pool}
}

// InTx begins a transaction, calls fn with repositories bound to it and
// commits if fn returns nil. Any error rolls the transaction back.
func (u *UnitOfWork) InTx(ctx context.Context, fn func(ctx context.Context, tx order.Stores) error) error {
	return pgx.BeginTxFunc(ctx, u.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(ctx, order.Stores{
			Books:  newLockingBookRepository(tx),
			Carts:  newLockingCartRepository(tx),
			Orders: &OrderRepository{q: tx},
			Outbox: &OutboxRepository{q: tx},
		})
	})
}
