package health

import (
	"context"
	"runtime"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck fails when more than threshold goroutines are
// running, which usually means requests are piling up or leaking.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(context.Context) error {
		if n := runtime.NumGoroutine(); n > threshold {
			return errors.Errorf("%d goroutines running, threshold is %d", n, threshold)
		}
		return nil
	}
}

// PingCheck adapts a dependency ping such as pgxpool.Pool.Ping. The error is
// prefixed with the dependency name.
func PingCheck(name string, ping func(context.Context) error) CheckFunc {
	return func(ctx context.Context) error {
		if err := ping(ctx); err != nil {
			return errors.Wrapf(err, "ping %s", name)
		}
		return nil
	}
}
