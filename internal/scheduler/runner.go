package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/semaphore"

	"github.com/stardag-dev/stardag-go/internal/task"
)

// ExecutionMode is a runner capability class (spec.md §4.2.2).
type ExecutionMode int

const (
	ModeCooperative ExecutionMode = iota
	ModeThread
	ModeProcess
	ModeRemote
)

func (m ExecutionMode) String() string {
	switch m {
	case ModeCooperative:
		return "cooperative"
	case ModeThread:
		return "thread"
	case ModeProcess:
		return "process"
	case ModeRemote:
		return "remote"
	default:
		return "unknown"
	}
}

// Runner accepts a task and drives its Run method to completion,
// reporting only whether it succeeded - dynamic-dependency suspension
// is handled inside Generator.Yield itself (see generator.go) and never
// surfaces as a distinct Runner outcome, unlike the token-based
// RESULT_DYNAMIC_DEPS the original's async runners return.
type Runner interface {
	Run(ctx context.Context, t task.Task, gen task.Generator) error
}

// ModeSelector inspects a task and picks the Runner class that should
// execute it. A default selector exists; WithModeSelector lets
// callers override it.
type ModeSelector func(t task.Task) ExecutionMode

// ModeHinter is an optional interface a task type may implement to
// request a non-default execution mode.
type ModeHinter interface {
	PreferredMode() ExecutionMode
}

// DefaultModeSelector runs everything cooperatively unless the task
// implements ModeHinter.
func DefaultModeSelector(t task.Task) ExecutionMode {
	if h, ok := t.(ModeHinter); ok {
		return h.PreferredMode()
	}
	return ModeCooperative
}

// CooperativeRunner runs a task's Run method directly on the calling
// goroutine (which is already its own per-task goroutine in Build's
// dispatch model), bounded only by the build's cooperative concurrency
// cap.
type CooperativeRunner struct {
	sem *semaphore.Weighted
}

// NewCooperativeRunner bounds concurrent cooperative Run calls to cap.
// cap <= 0 means unbounded.
func NewCooperativeRunner(cap int) *CooperativeRunner {
	if cap <= 0 {
		return &CooperativeRunner{}
	}
	return &CooperativeRunner{sem: semaphore.NewWeighted(int64(cap))}
}

func (r *CooperativeRunner) Run(ctx context.Context, t task.Task, gen task.Generator) error {
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return err
		}
		defer r.sem.Release(1)
	}
	return t.Run(ctx, gen)
}

// ThreadRunner offloads Run to a bounded worker pool, modeling the
// original's thread-pool runner: an independent concurrency cap from
// the cooperative runner's (spec.md §4.2.5). Go has no GIL, so in
// practice this differs from CooperativeRunner only in which cap
// applies - but that distinction is the entire point spec.md draws
// between the two runner classes.
type ThreadRunner struct {
	sem *semaphore.Weighted
}

// NewThreadRunner bounds concurrent thread-runner Run calls to cap.
func NewThreadRunner(cap int) *ThreadRunner {
	if cap <= 0 {
		cap = 1
	}
	return &ThreadRunner{sem: semaphore.NewWeighted(int64(cap))}
}

func (r *ThreadRunner) Run(ctx context.Context, t task.Task, gen task.Generator) error {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer r.sem.Release(1)

	done := make(chan error, 1)
	go func() { done <- t.Run(ctx, gen) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExternalExecutor sends a transport-serialized task to an
// out-of-process worker and returns its transport-serialized result.
// ProcessRunner and RemoteRunner both delegate to one; they differ only
// in what kind of process is on the other end (a local subprocess pool
// vs. a remote execution service) - a distinction that lives entirely
// in the caller-supplied ExternalExecutor, not in this package.
type ExternalExecutor interface {
	Execute(ctx context.Context, payload []byte) ([]byte, error)
}

// ExternalExecutorFunc adapts a function to ExternalExecutor.
type ExternalExecutorFunc func(ctx context.Context, payload []byte) ([]byte, error)

func (f ExternalExecutorFunc) Execute(ctx context.Context, payload []byte) ([]byte, error) {
	return f(ctx, payload)
}

// externalResult is the wire shape an ExternalExecutor must return:
// either an empty error string (success) or the task body's error
// message.
type externalResult struct {
	Error string `json:"error,omitempty"`
}

// externalRunner serializes a task for transport and hands it to an
// ExternalExecutor; it never supports dynamic deps, since a
// Generator.Yield call cannot cross the process/network boundary this
// runner interposes (spec.md §4.2.2's process/remote runners require
// "serialize tasks for transport", which only round-trips a task's
// static shape, not a live generator suspension).
type externalRunner struct {
	mode     ExecutionMode
	executor ExternalExecutor
}

// NewProcessRunner builds a Runner that hands each task to executor as
// a subprocess-style call (spec.md's Process runner).
func NewProcessRunner(executor ExternalExecutor) Runner {
	return &externalRunner{mode: ModeProcess, executor: executor}
}

// NewRemoteRunner builds a Runner that hands each task to executor as
// a call to an out-of-process worker or execution service (spec.md's
// Remote runner).
func NewRemoteRunner(executor ExternalExecutor) Runner {
	return &externalRunner{mode: ModeRemote, executor: executor}
}

// Run ignores gen: the task body executes inside the external
// process/service, so no Generator in this process could ever receive
// its Yield call.
func (r *externalRunner) Run(ctx context.Context, t task.Task, _ task.Generator) error {
	payload, err := task.MarshalTransport(t)
	if err != nil {
		return fmt.Errorf("stardag: marshaling task for %s runner: %w", r.mode, err)
	}

	respBytes, err := r.executor.Execute(ctx, payload)
	if err != nil {
		return fmt.Errorf("stardag: %s runner: %w", r.mode, err)
	}

	var result externalResult
	if len(respBytes) > 0 {
		if err := json.Unmarshal(respBytes, &result); err != nil {
			return fmt.Errorf("stardag: %s runner: decoding result: %w", r.mode, err)
		}
	}
	if result.Error != "" {
		return fmt.Errorf("stardag: task failed in %s runner: %s", r.mode, result.Error)
	}
	return nil
}
