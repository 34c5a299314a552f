// Package backoff provides the two retry policies stardag actually
// needs - full-jitter exponential backoff for lock acquisition
// retries (spec.md §4.3: start ~500ms, cap ~30s on
// held_by_other/workspace_cap_reached) and bounded constant backoff
// for internal/registry's fire-and-forget event delivery - plus the
// Retrier that drives either one through a blocking wait loop.
//
// Interval computation (ComputeNextInterval's shape, the exhausted-vs-
// canceled error split, Retrier's elapsed-time bookkeeping) follows
// Temporal's retry policy (MIT License):
// https://github.com/temporalio/temporal/blob/2a1044994085bffbeeee789cad52ecf2650c501c/common/backoff/retrypolicy.go
package backoff

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"
)

var (
	// ErrRetriesExhausted is returned once a policy's MaxRetries cap is
	// hit. AcquireBlocking wraps it into its give-up error;
	// HTTPClient.deliver takes it as the signal to stop retrying and
	// reports the last delivery error instead.
	ErrRetriesExhausted = errors.New("stardag: retries exhausted")
	// ErrOperationCanceled is returned when ctx is done while a Retrier
	// is waiting out an interval.
	ErrOperationCanceled = errors.New("stardag: retry operation canceled")
)

// RetryPolicy computes how long to wait before the next attempt, given
// how many attempts have already happened and the error that just
// occurred. Returning a non-nil error means "stop retrying".
type RetryPolicy interface {
	ComputeNextInterval(retryCount int, elapsedTime time.Duration, err error) (time.Duration, error)
}

// Retrier drives one RetryPolicy through repeated waits, tracking
// elapsed time and retry count across calls to Next.
type Retrier interface {
	// Next waits for the policy's next interval, or returns
	// ErrRetriesExhausted/ErrOperationCanceled/a policy error without
	// waiting.
	Next(ctx context.Context, err error) error
	// Reset restarts the retry count and elapsed-time clock.
	Reset()
}

const unlimitedRetries = 0

var (
	defaultBackoffFactor = 2.0
	defaultMaxInterval   = 30 * time.Second
)

// ExponentialBackoffPolicy doubles (by default) the interval after
// every retry up to MaxInterval. This is the lock acquire loop's
// policy (internal/lock.DefaultBackoffPolicy wraps it in full jitter).
type ExponentialBackoffPolicy struct {
	InitialInterval time.Duration `json:"initialInterval,omitempty"`
	BackoffFactor   float64       `json:"backoffFactor,omitempty"`
	MaxInterval     time.Duration `json:"maxInterval,omitempty"`
	// MaxRetries caps the number of retries. 0 means unlimited, which
	// is what the lock acquire loop wants: it gives up on ctx
	// cancellation, not on a retry count.
	MaxRetries int `json:"maxRetries,omitempty"`
}

// NewExponentialBackoffPolicy builds an unlimited-retry exponential
// policy starting at initialInterval, doubling up to 30s.
func NewExponentialBackoffPolicy(initialInterval time.Duration) *ExponentialBackoffPolicy {
	return &ExponentialBackoffPolicy{
		InitialInterval: initialInterval,
		BackoffFactor:   defaultBackoffFactor,
		MaxInterval:     defaultMaxInterval,
		MaxRetries:      unlimitedRetries,
	}
}

func (p *ExponentialBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}

	interval := float64(p.InitialInterval) * math.Pow(p.BackoffFactor, float64(retryCount))
	if interval > float64(p.MaxInterval) {
		interval = float64(p.MaxInterval)
	}
	return time.Duration(interval), nil
}

// ConstantBackoffPolicy waits the same interval between every retry,
// up to a bounded MaxRetries. This is HTTPClient's event-delivery
// policy: a registry outage shouldn't back off forever, it should give
// up after a handful of attempts and let the caller log and move on.
type ConstantBackoffPolicy struct {
	Interval   time.Duration `json:"interval,omitempty"`
	MaxRetries int           `json:"maxRetries,omitempty"`
}

// NewConstantBackoffPolicy builds a constant policy. Pass 0 for
// maxRetries to retry indefinitely - registry delivery itself always
// passes a bound (5, per HTTPClient's default), but callers testing
// against it with an artificially short interval often want no cap.
func NewConstantBackoffPolicy(interval time.Duration, maxRetries int) *ConstantBackoffPolicy {
	return &ConstantBackoffPolicy{Interval: interval, MaxRetries: maxRetries}
}

func (p *ConstantBackoffPolicy) ComputeNextInterval(retryCount int, _ time.Duration, _ error) (time.Duration, error) {
	if p.MaxRetries > 0 && retryCount >= p.MaxRetries {
		return 0, ErrRetriesExhausted
	}
	return p.Interval, nil
}

// NewRetrier wraps retryPolicy in a Retrier, starting its elapsed-time
// clock on the first call to Next.
func NewRetrier(retryPolicy RetryPolicy) Retrier {
	return &retrierImpl{retryPolicy: retryPolicy}
}

type retrierImpl struct {
	retryPolicy RetryPolicy
	retryCount  int
	startTime   time.Time
	mu          sync.Mutex
}

func (r *retrierImpl) Next(ctx context.Context, err error) error {
	r.mu.Lock()
	if r.startTime.IsZero() {
		r.startTime = time.Now()
	}
	elapsedTime := time.Since(r.startTime)

	interval, computeErr := r.retryPolicy.ComputeNextInterval(r.retryCount, elapsedTime, err)
	if computeErr != nil {
		r.mu.Unlock()
		return computeErr
	}
	r.retryCount++
	r.mu.Unlock()

	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ErrOperationCanceled
	}
}

func (r *retrierImpl) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryCount = 0
	r.startTime = time.Time{}
}
