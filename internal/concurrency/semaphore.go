// Package concurrency provides the bounded fan-out helpers the materializer
// and retrieval pipeline use to cap in-flight work (contact creation,
// rerank batches) at the limits the concurrency
// model requires, built on golang.org/x/sync/errgroup.
package concurrency

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// ForEachBounded runs fn(i) for i in [0, n) with at most `limit` concurrent
// invocations, returning the first error encountered (if any); remaining
// in-flight invocations are allowed to finish, matching errgroup's semantics.
func ForEachBounded(ctx context.Context, n, limit int, fn func(ctx context.Context, i int) error) error {
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			return fn(gctx, i)
		})
	}
	return g.Wait()
}

// Batches splits items into consecutive chunks of at most size each. Used for
// the contact-lookup `WHERE email IN (...)` chunking and rerank batching.
func Batches[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = len(items)
		if size == 0 {
			return nil
		}
	}
	var out [][]T
	for i := 0; i < len(items); i += size {
		end := i + size
		if end > len(items) {
			end = len(items)
		}
		out = append(out, items[i:end])
	}
	return out
}
