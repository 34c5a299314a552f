package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/stardag-dev/stardag-go/internal/backoff"
)

// DefaultBackoffPolicy is the retry policy AcquireBlocking uses when
// the caller doesn't supply one: full-jitter exponential backoff
// starting at 500ms and capped at 30s, per spec.md §4.3.
func DefaultBackoffPolicy() backoff.RetryPolicy {
	return backoff.WithJitter(backoff.NewExponentialBackoffPolicy(500*time.Millisecond), backoff.FullJitter)
}

// AcquireBlocking retries Acquire against policy until it returns
// StatusAcquired or StatusAlreadyCompleted, ctx is done, or the policy
// exhausts its retries. It treats StatusHeldByOther, WorkspaceCap
// Reached, and StatusError identically for backoff purposes: all three
// just mean "try again later" (spec.md §4.3 does not distinguish them
// for retry cadence, only for the WAITING_FOR_LOCK event's reason
// string, which the caller can read off the returned AcquireResult).
func AcquireBlocking(ctx context.Context, lk GlobalConcurrencyLock, taskID, ownerID string, ttl time.Duration, checkCompletion bool, policy backoff.RetryPolicy) (AcquireResult, error) {
	if policy == nil {
		policy = DefaultBackoffPolicy()
	}
	retrier := backoff.NewRetrier(policy)

	for {
		res, err := lk.Acquire(ctx, taskID, ownerID, ttl, checkCompletion)
		if err != nil {
			return AcquireResult{}, fmt.Errorf("stardag: acquiring lock for %s: %w", taskID, err)
		}
		switch res.Status {
		case StatusAcquired, StatusAlreadyCompleted:
			return res, nil
		}

		if waitErr := retrier.Next(ctx, fmt.Errorf("%s: %s", res.Status, res.ErrMessage)); waitErr != nil {
			return res, fmt.Errorf("stardag: giving up acquiring lock for %s (last status %s): %w", taskID, res.Status, waitErr)
		}
	}
}

// Renewer periodically renews a held lock at roughly ttl/3 intervals
// until Stop is called or ctx is done, matching spec.md §4.3's
// owner-stable renewal cadence. A failed renewal (lock lost to TTL
// expiry, or to another owner after a crash-recovery window) is
// reported on Lost, which the scheduler treats as grounds to fail the
// task: the engine's invariant that "a RUNNING task holds its lock"
// would otherwise silently break.
type Renewer struct {
	cancel context.CancelFunc
	Lost   <-chan error
}

// StartRenewer begins renewing taskID's lock for ownerID.
func StartRenewer(ctx context.Context, lk GlobalConcurrencyLock, taskID, ownerID string, ttl time.Duration) *Renewer {
	ctx, cancel := context.WithCancel(ctx)
	lost := make(chan error, 1)
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				ok, err := lk.Renew(ctx, taskID, ownerID, ttl)
				if err != nil {
					select {
					case lost <- fmt.Errorf("stardag: renewing lock for %s: %w", taskID, err):
					default:
					}
					return
				}
				if !ok {
					select {
					case lost <- fmt.Errorf("stardag: lost lock for %s while running (renewal rejected)", taskID):
					default:
					}
					return
				}
			}
		}
	}()

	return &Renewer{cancel: cancel, Lost: lost}
}

// Stop ends the renewal loop. Safe to call multiple times.
func (r *Renewer) Stop() { r.cancel() }
