package postgres

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/bookstore/internal/outbox"
)

const (
	appendOutboxSQL = `INSERT INTO outbox (event_type, key, payload) VALUES ($1, $2, $3)`

	fetchPendingOutboxSQL = `SELECT id, event_type, key, payload, created_at FROM outbox
		WHERE sent_at IS NULL ORDER BY id LIMIT $1`

	markOutboxSentSQL = `UPDATE outbox SET sent_at = now() WHERE id = ANY($1)`
)

var (
	_ outbox.Writer = (*OutboxRepository)(nil)
	_ outbox.Store  = (*OutboxRepository)(nil)
)

// OutboxRepository stores pending events in the outbox table.
type OutboxRepository struct {
	q querier
}

// NewOutboxRepository returns an OutboxRepository that uses the given pool.
func NewOutboxRepository(pool *pgxpool.Pool) *OutboxRepository {
	return &OutboxRepository{q: pool}
}

// Append records m. Inside a unit of work the row becomes visible only when
// the transaction commits.
func (r *OutboxRepository) Append(ctx context.Context, m outbox.Message) error {
	if _, err := r.q.Exec(ctx, appendOutboxSQL, m.Type, m.Key, []byte(m.Payload)); err != nil {
		return errors.Wrapf(err, "append %s event", m.Type)
	}
	return nil
}

// FetchPending returns up to limit unsent messages, oldest first.
func (r *OutboxRepository) FetchPending(ctx context.Context, limit int) ([]outbox.Message, error) {
	rows, err := r.q.Query(ctx, fetchPendingOutboxSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "fetch pending events")
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (outbox.Message, error) {
		var (
			m       outbox.Message
			payload []byte
		)
		err := row.Scan(&m.ID, &m.Type, &m.Key, &payload, &m.CreatedAt)
		m.Payload = payload
		return m, err
	})
}

// MarkSent acknowledges delivered messages.
func (r *OutboxRepository) MarkSent(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := r.q.Exec(ctx, markOutboxSentSQL, ids); err != nil {
		return errors.Wrap(err, "mark events sent")
	}
	return nil
}
