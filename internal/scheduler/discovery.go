package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// defaultPreCheckConcurrency bounds how many target.Exists calls run at
// once during the completion pre-check. Unbounded would risk saturating
// a remote target backend's connection pool on a wide DAG; a fixed cap
// well above typical fan-out keeps a 100-leaf DAG's checks running
// concurrently rather than batched.
const defaultPreCheckConcurrency = 128

// precheckCompletions runs task.Complete(ctx) for every discovered node
// concurrently, bounded by concurrency, and marks each node COMPLETED
// whose Output already exists (the cache-hit path, spec.md §4.2.3 item
// 2). The engine MUST NOT check completeness sequentially: a 100-leaf
// DAG with 50ms-each checks must finish in ~50ms, not ~5s.
func precheckCompletions(ctx context.Context, nodes []*node, concurrency int) error {
	if concurrency <= 0 {
		concurrency = defaultPreCheckConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, n := range nodes {
		n := n
		g.Go(func() error {
			complete, err := n.task.Complete(ctx)
			if err != nil {
				return err
			}
			if complete {
				n.setState(StateCompleted)
			}
			return nil
		})
	}
	return g.Wait()
}
