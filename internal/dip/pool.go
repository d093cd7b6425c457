package dip

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers bounds concurrent downloads.
const DefaultWorkers = 5

// runPool calls fn once for every index in [0, n) using at most workers
// goroutines that share one cursor. fn handles its own errors; the pool only
// stops early when ctx is cancelled.
func runPool(ctx context.Context, workers, n int, fn func(ctx context.Context, i int)) error {
	if n == 0 {
		return nil
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if workers > n {
		workers = n
	}

	var cursor atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for range workers {
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				i := int(cursor.Add(1)) - 1
				if i >= n {
					return nil
				}
				fn(gctx, i)
			}
		})
	}
	return g.Wait()
}
