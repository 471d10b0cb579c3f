package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Checkout outcomes recorded by Metrics.
const (
	OutcomePlaced            = "placed"
	OutcomeEmptyCart         = "empty_cart"
	OutcomeItemNotFound      = "item_not_found"
	OutcomeInsufficientStock = "insufficient_stock"
	OutcomeRejected          = "rejected"
	OutcomeError             = "error"
)

// Metrics records checkout counts and latency. A nil *Metrics records
// nothing.
type Metrics struct {
	checkouts metric.Int64Counter
	duration  metric.Float64Histogram
}

// NewMetrics registers the checkout instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	checkouts, err := meter.Int64Counter("bookstore.checkout.total",
		metric.WithDescription("Checkout attempts by outcome"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout counter")
	}
	duration, err := meter.Float64Histogram("bookstore.checkout.duration",
		metric.WithDescription("Checkout latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, errors.Wrap(err, "checkout histogram")
	}
	return &Metrics{checkouts: checkouts, duration: duration}, nil
}

func (m *Metrics) observe(ctx context.Context, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcomeOf(err)))
	m.checkouts.Add(ctx, 1, attrs)
	m.duration.Record(ctx, elapsed.Seconds(), attrs)
}

func outcomeOf(err error) string {
	var (
		notFound     *ItemNotFoundError
		insufficient *InsufficientStockError
	)
	switch {
	case err == nil:
		return OutcomePlaced
	case errors.Is(err, ErrEmptyCart):
		return OutcomeEmptyCart
	case errors.As(err, &notFound):
		return OutcomeItemNotFound
	case errors.As(err, &insufficient):
		return OutcomeInsufficientStock
	case IsCheckoutRejection(err):
		return OutcomeRejected
	default:
		return OutcomeError
	}
}
