// Package registry implements the append-only event-log client the
// scheduler reports build- and task-lifecycle transitions to, grounded
// on spec.md §4.4 and the original's stardag.build.registry package
// (RegistryABC / APIRegistry / NoOpRegistry).
package registry

import (
	"context"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/registryasset"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// EventKind enumerates the exhaustive set of lifecycle events spec.md
// §4.4 names. The registry is append-only: the engine only ever emits
// these, never reads derived state back.
type EventKind string

const (
	BuildStarted   EventKind = "BUILD_STARTED"
	BuildCompleted EventKind = "BUILD_COMPLETED"
	BuildFailed    EventKind = "BUILD_FAILED"
	BuildCancelled EventKind = "BUILD_CANCELLED"
	BuildExitEarly EventKind = "BUILD_EXIT_EARLY"

	TaskPending        EventKind = "TASK_PENDING"
	TaskReferenced     EventKind = "TASK_REFERENCED"
	TaskStarted        EventKind = "TASK_STARTED"
	TaskSuspended      EventKind = "TASK_SUSPENDED"
	TaskResumed        EventKind = "TASK_RESUMED"
	TaskWaitingForLock EventKind = "TASK_WAITING_FOR_LOCK"
	TaskCompleted      EventKind = "TASK_COMPLETED"
	TaskFailed         EventKind = "TASK_FAILED"
	TaskSkipped        EventKind = "TASK_SKIPPED"
	TaskCancelled      EventKind = "TASK_CANCELLED"
)

// Client is the registry's entire surface. Every method except
// RegisterTask has a meaningful no-op: a workspace without a
// configured registry still builds correctly against NoOp.
//
// register_task MUST be called for a task before any lifecycle event
// referencing it is emitted (spec.md §4.4); the scheduler is
// responsible for sequencing this, not the client.
type Client interface {
	// StartBuild begins a build session for roots, returning an opaque
	// build id if the backend tracks builds (empty string otherwise).
	StartBuild(ctx context.Context, roots []task.Task, description string) (string, error)
	CompleteBuild(ctx context.Context, buildID string) error
	FailBuild(ctx context.Context, buildID string, errMessage string) error
	// CancelBuild reports that the build was stopped by explicit
	// external cancellation, distinct from FailBuild (spec.md §5).
	CancelBuild(ctx context.Context, buildID string) error
	// ExitEarlyBuild reports that the build gave up dispatching new
	// work because its remaining tasks' locks were held by other
	// builds, not because any task of this build failed.
	ExitEarlyBuild(ctx context.Context, buildID string) error

	// RegisterTask uploads t's full transport-mode payload plus
	// provenance (user, commit hash) and its static dependency ids. A
	// re-registration of the same task id in the same workspace is
	// idempotent: the backend returns the existing record rather than
	// duplicating it.
	RegisterTask(ctx context.Context, buildID string, t task.Task, depIDs []uuid.UUID) error

	StartTask(ctx context.Context, buildID string, t task.Task) error
	// ReferenceTask marks a task observed already-complete - either via
	// the completion pre-check (target.Exists) or a lock acquire that
	// reported already_completed - without ever entering RUNNING.
	ReferenceTask(ctx context.Context, buildID string, t task.Task) error
	SuspendTask(ctx context.Context, buildID string, t task.Task) error
	ResumeTask(ctx context.Context, buildID string, t task.Task) error
	WaitingForLock(ctx context.Context, buildID string, t task.Task, reason string) error
	CompleteTask(ctx context.Context, buildID string, t task.Task) error
	FailTask(ctx context.Context, buildID string, t task.Task, errMessage string) error
	SkipTask(ctx context.Context, buildID string, t task.Task) error
	CancelTask(ctx context.Context, buildID string, t task.Task) error

	// UploadAssets uploads assets for a completed task. Idempotent on
	// (task id, asset kind, asset name): a re-upload with the same key
	// replaces the prior body rather than duplicating it.
	UploadAssets(ctx context.Context, buildID string, t task.Task, assets []registryasset.Asset) error
}

// NoOp is the registry used when none is configured. Every method
// succeeds without side effects, so the engine's correctness never
// depends on a registry being present.
type NoOp struct{}

var _ Client = NoOp{}

func (NoOp) StartBuild(context.Context, []task.Task, string) (string, error) { return "", nil }
func (NoOp) CompleteBuild(context.Context, string) error                     { return nil }
func (NoOp) FailBuild(context.Context, string, string) error                { return nil }
func (NoOp) CancelBuild(context.Context, string) error                      { return nil }
func (NoOp) ExitEarlyBuild(context.Context, string) error                   { return nil }
func (NoOp) RegisterTask(context.Context, string, task.Task, []uuid.UUID) error {
	return nil
}
func (NoOp) StartTask(context.Context, string, task.Task) error       { return nil }
func (NoOp) ReferenceTask(context.Context, string, task.Task) error   { return nil }
func (NoOp) SuspendTask(context.Context, string, task.Task) error     { return nil }
func (NoOp) ResumeTask(context.Context, string, task.Task) error      { return nil }
func (NoOp) CompleteTask(context.Context, string, task.Task) error    { return nil }
func (NoOp) SkipTask(context.Context, string, task.Task) error        { return nil }
func (NoOp) CancelTask(context.Context, string, task.Task) error      { return nil }
func (NoOp) FailTask(context.Context, string, task.Task, string) error {
	return nil
}
func (NoOp) WaitingForLock(context.Context, string, task.Task, string) error {
	return nil
}
func (NoOp) UploadAssets(context.Context, string, task.Task, []registryasset.Asset) error {
	return nil
}
