// Package target declares the Target abstraction a task's Output()
// returns: something whose existence the scheduler can check to decide
// whether a task is already complete. Concrete filesystem/S3/cloud-
// volume backends are out of scope; this package only provides the
// interface and an in-memory test double (see InMemoryTarget).
package target

import "context"

// Target is a handle to a task's persisted artifact. Exists()
// answers "does the thing this task was supposed to produce already
// exist" without re-running the task.
type Target interface {
	// Exists reports whether the target's underlying artifact is
	// already present. It must be safe to call from many goroutines
	// concurrently (the scheduler's discovery pre-check calls it
	// across the whole DAG at once).
	Exists(ctx context.Context) (bool, error)
	// Path returns a human-readable identifier for the target (a file
	// path, an object key, a DB row key) for use in logs and CLI
	// output; it does not need to be a real filesystem path.
	Path() string
}

// None is the zero Target: a task that produces no persisted output
// (a notification, a side-effecting action) and is therefore never
// skipped as "already complete". Exists always reports false.
type None struct{}

func (None) Exists(context.Context) (bool, error) { return false, nil }
func (None) Path() string                         { return "" }
