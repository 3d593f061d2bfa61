package executor

import (
	"context"
	"sync"
)

// MaxBulkQueries is the cap on sub-queries per /search/bulk request,
// spec.md §6's 100-query limit.
const MaxBulkQueries = 100

// DefaultBulkConcurrency bounds how many sub-queries run in flight at
// once, so one bulk request cannot exhaust the server's blocking-work
// pool. Grounded on the segmenter client's bounded-concurrency dispatch
// (internal/segmenter/client.go's semaphore-channel pattern).
const DefaultBulkConcurrency = 8

// RunBulk executes fn for every index in [0, n) with at most
// maxConcurrency in flight, writing each result into its own slot so the
// returned slice preserves sub-query order regardless of completion
// order.
func RunBulk(ctx context.Context, n, maxConcurrency int, fn func(ctx context.Context, i int) (any, error)) ([]any, []error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultBulkConcurrency
	}
	results := make([]any, n)
	errs := make([]error, n)
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			r, err := fn(ctx, i)
			results[i] = r
			errs[i] = err
		}(i)
	}
	wg.Wait()
	return results, errs
}
