package task

import (
	"context"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/registryasset"
	"github.com/stardag-dev/stardag-go/internal/target"
)

// Generator is passed to Run when the active Runner supports dynamic
// dependency expansion (the cooperative and thread runners). Calling
// Yield is how a task body requests additional dependencies mid-run
// and blocks until the scheduler reports them all complete - the Go
// realization of the original's yield-based generator tasks, using a
// real goroutine instead of an explicit continuation token (see
// SPEC_FULL.md §1-9 [GO] and internal/scheduler's runner
// implementations).
//
// Yield may be called at most once per Run invocation; a second call
// returns ErrAlreadyYielded.
type Generator interface {
	Yield(ctx context.Context, deps TaskStruct) error
}

// Task is an immutable, parameterized unit of work. Concrete task
// types embed Base and implement the methods Base cannot provide on
// their behalf (Go has no virtual dispatch through struct embedding -
// see Base.ComputeID).
type Task interface {
	// TypeID is this task's polymorphic discriminator.
	TypeID() TypeID
	// Version participates in identity; bump it to invalidate the
	// cache for every task of this type at once.
	Version() string
	// Fields declares this task's parameters in declaration order. The
	// order only affects transport-mode readability; hash mode always
	// sorts keys.
	Fields() []Field
	// ID is this task's content-addressed identity.
	ID() uuid.UUID
	// Requires declares this task's static dependencies, resolved once
	// at scheduling time before the task may run.
	Requires() TaskStruct
	// Output is this task's persisted artifact target. Return
	// target.None{} for tasks with no persisted output.
	Output() target.Target
	// Complete reports whether Output's artifact already exists,
	// without running the task. Base.CompleteViaOutput delegates to
	// Output().Exists(ctx); implement it differently only for tasks
	// that need a different completeness notion.
	Complete(ctx context.Context) (bool, error)
	// Run executes the task body. gen is non-nil only under a runner
	// that supports dynamic deps; a task that never calls gen.Yield
	// behaves identically whether gen is nil or not.
	Run(ctx context.Context, gen Generator) error
	// RegistryAssets returns rich outputs to upload to the registry
	// after a successful Run. It must be safe to call from a different
	// process than Run executed in (loading from Output, not from
	// in-memory state left over from Run), since the process runner
	// executes Run in a subprocess.
	RegistryAssets(ctx context.Context) ([]registryasset.Asset, error)
}

// TaskStruct is the shape a task's Requires() or a Generator.Yield
// call may return: a single task, an ordered sequence of TaskStructs,
// or a string-keyed map of them. Flatten walks any of these into a
// plain []Task.
type TaskStruct interface{ isTaskStruct() }

// Single wraps one Task as a TaskStruct. A nil Task flattens to
// nothing, so "no dependency" can be expressed as Of(nil) inside a
// Seq/Dict without special-casing the caller.
type Single struct{ Task Task }

func (Single) isTaskStruct() {}

// Of wraps t as a TaskStruct.
func Of(t Task) TaskStruct { return Single{Task: t} }

// Seq is an ordered sequence of TaskStructs.
type Seq []TaskStruct

func (Seq) isTaskStruct() {}

// Dict is a string-keyed map of TaskStructs. Flatten visits its
// entries in sorted key order so the flattened dependency list is
// deterministic across runs.
type Dict map[string]TaskStruct

func (Dict) isTaskStruct() {}

// Flatten walks s depth-first into the Tasks it contains. A nil s
// flattens to nil.
func Flatten(s TaskStruct) []Task {
	switch v := s.(type) {
	case nil:
		return nil
	case Single:
		if v.Task == nil {
			return nil
		}
		return []Task{v.Task}
	case Seq:
		out := make([]Task, 0, len(v))
		for _, sub := range v {
			out = append(out, Flatten(sub)...)
		}
		return out
	case Dict:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sortStrings(keys)
		out := make([]Task, 0, len(v))
		for _, k := range keys {
			out = append(out, Flatten(v[k])...)
		}
		return out
	default:
		return nil
	}
}

func sortStrings(s []string) {
	// small, allocation-free insertion sort: dependency dicts are
	// never large enough to justify sort.Strings's overhead.
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
