package outbox

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Relay periodically publishes pending messages and marks them sent.
type Relay struct {
	store    Store
	pub      Publisher
	interval time.Duration
	batch    int
}

// NewRelay creates a Relay polling every interval for up to batch messages.
func NewRelay(store Store, pub Publisher, interval time.Duration, batch int) *Relay {
	if interval <= 0 {
		interval = time.Second
	}
	if batch <= 0 {
		batch = 100
	}
	return &Relay{store: store, pub: pub, interval: interval, batch: batch}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	lg := zctx.From(ctx)
	lg.Info("Outbox relay started", zap.Duration("interval", r.interval), zap.Int("batch", r.batch))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			lg.Info("Outbox relay stopped")
			return nil
		case <-ticker.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				lg.Error("outbox flush failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes one batch and returns how many messages were sent. A
// message that fails to publish stays pending and is retried on the next
// call; later messages in the batch are still attempted.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	pending, err := r.store.FetchPending(ctx, r.batch)
	if err != nil {
		return 0, errors.Wrap(err, "fetch pending")
	}
	if len(pending) == 0 {
		return 0, nil
	}

	lg := zctx.From(ctx)
	sent := make([]int64, 0, len(pending))
	for _, m := range pending {
		if err := r.pub.Publish(ctx, m); err != nil {
			lg.Warn("outbox publish failed",
				zap.Int64("id", m.ID),
				zap.String("type", m.Type),
				zap.Error(err),
			)
			continue
		}
		sent = append(sent, m.ID)
	}

	if len(sent) == 0 {
		return 0, nil
	}
	if err := r.store.MarkSent(ctx, sent); err != nil {
		return 0, errors.Wrap(err, "mark sent")
	}
	return len(sent), nil
}
