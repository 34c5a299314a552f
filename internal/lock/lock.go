// Package lock implements the global concurrency lock protocol
// (spec.md §4.3): a cross-build, cross-process mutex keyed by task id
// that the scheduler acquires before running a task and renews while
// it runs, so two concurrent builds (or two workers racing the same
// build) never run the same task twice.
package lock

import (
	"context"
	"time"
)

// Status is the outcome of an Acquire call.
type Status int

const (
	// StatusAcquired means the caller now holds the lock (or already
	// held it - acquisition is re-entrant for a matching owner id).
	StatusAcquired Status = iota
	// StatusAlreadyCompleted means the lock service observed a
	// completion record for this task from another build; the caller
	// should transition the task directly to completed without
	// acquiring anything.
	StatusAlreadyCompleted
	// StatusHeldByOther means a different owner currently holds the
	// lock; the caller should back off and retry.
	StatusHeldByOther
	// StatusWorkspaceCapReached means the lock service rejected the
	// acquisition because the workspace's concurrent-lock cap is
	// already saturated, independent of any specific other owner. It
	// is retried with the same backoff policy as StatusHeldByOther but
	// carries a distinguishable reason for observability.
	StatusWorkspaceCapReached
	// StatusError means the lock backend itself failed (network error,
	// 5xx, malformed response); the caller should treat it like
	// StatusHeldByOther for retry purposes but surface ErrMessage.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusAcquired:
		return "acquired"
	case StatusAlreadyCompleted:
		return "already_completed"
	case StatusHeldByOther:
		return "held_by_other"
	case StatusWorkspaceCapReached:
		return "workspace_cap_reached"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// AcquireResult is what Acquire returns.
type AcquireResult struct {
	Status     Status
	ErrMessage string
}

// GlobalConcurrencyLock is the protocol the scheduler drives for every
// task right before running it. Implementations: an in-memory one for
// tests and single-process use (Memory), an HTTP client against the
// registry service's lock endpoints (HTTPClient), and a Redis-backed
// one for workspaces without the full registry service
// (redislock.Lock).
type GlobalConcurrencyLock interface {
	// Acquire attempts to take the lock for taskID on behalf of
	// ownerID. Re-entrant: if the existing holder's owner id already
	// equals ownerID, this succeeds again rather than reporting
	// held_by_other. If checkCompletion is true and the backend has a
	// completion record for taskID, returns StatusAlreadyCompleted
	// without taking the lock.
	Acquire(ctx context.Context, taskID, ownerID string, ttl time.Duration, checkCompletion bool) (AcquireResult, error)
	// Renew extends ownerID's TTL on taskID. Returns false if ownerID
	// is not the current holder (lock expired and was taken by
	// someone else, or never existed).
	Renew(ctx context.Context, taskID, ownerID string, ttl time.Duration) (bool, error)
	// Release gives up ownerID's lock on taskID. taskCompleted, when
	// true, additionally records a completion for taskID (atomically,
	// where the backend supports it) so a future Acquire's
	// checkCompletion short-circuits. Returns false if ownerID was not
	// the current holder.
	Release(ctx context.Context, taskID, ownerID string, taskCompleted bool) (bool, error)
}
