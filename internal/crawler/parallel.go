package crawler

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// ParallelMap applies fn to every item with at most limit calls in flight and
// returns the results in input order once all calls have finished. Items not
// started before ctx is done keep the zero value.
func ParallelMap[T, R any](ctx context.Context, items []T, limit int, fn func(context.Context, T) R) []R {
	out := make([]R, len(items))
	if len(items) == 0 {
		return out
	}
	if limit <= 0 {
		limit = runtime.NumCPU()
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, item := range items {
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			out[i] = fn(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// FlattenUnique merges groups into one slice without duplicates, keeping the
// first occurrence of each value.
func FlattenUnique[T comparable](groups [][]T) []T {
	seen := make(map[T]struct{})
	var out []T
	for _, group := range groups {
		for _, v := range group {
			if _, ok := seen[v]; ok {
				continue
			}
			seen[v] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}
