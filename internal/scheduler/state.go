// Package scheduler drives a set of root tasks through the build state
// machine (spec.md §4.2): discovery, a concurrent completion pre-check,
// lock-gated dispatch onto a runner, and registry event emission. See
// Build and Option.
package scheduler

// TaskState is a task's position in the build state machine.
type TaskState int

const (
	StateNew TaskState = iota
	StatePending
	StateWaitingStaticDeps
	StateAcquiringLock
	StateWaitingForLock
	StateRunning
	StateWaitingDynamicDeps
	StateResuming
	StateUploadingAssets
	StateCompleted
	StateFailed
	StateSkipped
	StateCancelled
)

func (s TaskState) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StatePending:
		return "PENDING"
	case StateWaitingStaticDeps:
		return "WAITING_STATIC_DEPS"
	case StateAcquiringLock:
		return "ACQUIRING_LOCK"
	case StateWaitingForLock:
		return "WAITING_FOR_LOCK"
	case StateRunning:
		return "RUNNING"
	case StateWaitingDynamicDeps:
		return "WAITING_DYNAMIC_DEPS"
	case StateResuming:
		return "RESUMING"
	case StateUploadingAssets:
		return "UPLOADING_ASSETS"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	case StateSkipped:
		return "SKIPPED"
	case StateCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether s is one the scheduler never transitions
// out of.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateSkipped, StateCancelled:
		return true
	default:
		return false
	}
}

// FailMode selects how the build reacts to a task failure (spec.md
// §4.2.4).
type FailMode int

const (
	// FailFast cancels all inflight tasks (best-effort) and refuses to
	// dispatch new ones on the first failure.
	FailFast FailMode = iota
	// BestEffort marks only the failed task's downstream closure
	// SKIPPED, letting independent branches keep running.
	BestEffort
)
