package postgres

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/domain/order"
)

const orderColumns = `id, user_id, lines, total, shipping_address, billing_address,
	payment_method, transaction_id, status, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC, id DESC`

	updateOrderStatusSQL = `UPDATE orders SET status = $3, updated_at = $4 WHERE id = $1 AND status = $2`
	orderExistsSQL       = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`
)

const orderTransactionKey = "orders_transaction_id_key"

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Lines and
// addresses are stored as JSONB documents.
type OrderRepository struct {
	q querier
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{q: pool}
}

// Create persists a new order. A transaction id already used by another
// order yields order.ErrDuplicateTransaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	lines, err := json.Marshal(o.Lines)
	if err != nil {
		return errors.Wrap(err, "encode order lines")
	}
	shipping, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return errors.Wrap(err, "encode shipping address")
	}
	billing, err := json.Marshal(o.BillingAddress)
	if err != nil {
		return errors.Wrap(err, "encode billing address")
	}

	_, err = r.q.Exec(ctx, createOrderSQL,
		o.ID, o.UserID, lines, o.Total, shipping, billing,
		o.PaymentMethod, nullIfEmpty(o.TransactionID), string(o.Status), o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if isViolation(err, codeUniqueViolation, orderTransactionKey) {
			return order.ErrDuplicateTransaction
		}
		return errors.Wrapf(err, "create order %q", o.ID)
	}
	return nil
}

// GetByID returns one order or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.q.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrapf(err, "get order %q", id)
	}
	return &o, nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]order.Order, error) {
	rows, err := r.q.Query(ctx, listOrdersByUserSQL, userID)
	if err != nil {
		return nil, errors.Wrapf(err, "list orders for %q", userID)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// List returns up to p.Limit orders strictly older than p.After in
// (created_at, id) order, newest first.
func (r *OrderRepository) List(ctx context.Context, p order.ListParams) ([]order.Order, error) {
	var (
		conds []string
		args  []any
	)
	if p.Status != "" {
		args = append(args, string(p.Status))
		conds = append(conds, "status = $"+strconv.Itoa(len(args)))
	}
	if p.After != nil {
		args = append(args, p.After.CreatedAt, p.After.ID)
		conds = append(conds, "(created_at, id) < ($"+strconv.Itoa(len(args)-1)+", $"+strconv.Itoa(len(args))+")")
	}

	query := `SELECT ` + orderColumns + ` FROM orders`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, p.Limit)
	query += " ORDER BY created_at DESC, id DESC LIMIT $" + strconv.Itoa(len(args))

	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list orders")
	}
	return pgx.CollectRows(rows, scanOrder)
}

// UpdateStatus moves an order from one status to another. The update only
// applies while the stored status still equals from.
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, from, to order.Status, at time.Time) error {
	tag, err := r.q.Exec(ctx, updateOrderStatusSQL, id, string(from), string(to), at)
	if err != nil {
		return errors.Wrapf(err, "update order %q status", id)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.q.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return errors.Wrapf(err, "check order %q", id)
	}
	if !exists {
		return order.ErrNotFound
	}
	return order.ErrStatusChanged
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                        order.Order
		lines, shipping, billing []byte
		transactionID            *string
		status                   string
	)
	if err := row.Scan(
		&o.ID, &o.UserID, &lines, &o.Total, &shipping, &billing,
		&o.PaymentMethod, &transactionID, &status, &o.CreatedAt, &o.UpdatedAt,
	); err != nil {
		return o, err
	}
	o.TransactionID = derefString(transactionID)
	o.Status = order.Status(status)

	if err := json.Unmarshal(lines, &o.Lines); err != nil {
		return o, errors.Wrapf(err, "decode lines of order %q", o.ID)
	}
	if err := json.Unmarshal(shipping, &o.ShippingAddress); err != nil {
		return o, errors.Wrapf(err, "decode shipping address of order %q", o.ID)
	}
	if err := json.Unmarshal(billing, &o.BillingAddress); err != nil {
		return o, errors.Wrapf(err, "decode billing address of order %q", o.ID)
	}
	return o, nil
}
