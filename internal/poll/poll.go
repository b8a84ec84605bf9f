// Package poll repeats a fetch on a fixed interval until a predicate says
// the result is final.
package poll

import (
	"context"
	"time"
)

// Until calls fetch right away and then every interval. Each result is passed
// to onTick (which may be nil). Fetch errors are reported through onTick and
// do not stop polling. Until returns nil once stop reports true for a
// successful result, or ctx.Err() when the context ends first.
func Until[T any](ctx context.Context, interval time.Duration, fetch func(context.Context) (T, error), stop func(T) bool, onTick func(T, error)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		v, err := fetch(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if onTick != nil {
			onTick(v, err)
		}
		if err == nil && stop(v) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Every runs fn immediately and then on each tick until ctx ends.
func Every(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	_ = Until(ctx, interval, func(c context.Context) (struct{}, error) {
		fn(c)
		return struct{}{}, nil
	}, func(struct{}) bool { return false }, nil)
}
