package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/target"
	"github.com/stardag-dev/stardag-go/internal/task"
)

var schedNS = task.Namespace("stardag.scheduler.test")

// addTask mirrors spec.md's Scenario A fixture: two int fields, no
// dependencies, output cached in an in-memory target keyed by its
// content-addressed id.
type addTask struct {
	task.Base
	A, B  int64
	store *target.InMemoryStore

	mu  sync.Mutex
	ran int
}

func (t *addTask) TypeID() task.TypeID { return schedNS("add") }
func (t *addTask) Version() string     { return "1" }
func (t *addTask) Fields() []task.Field {
	return []task.Field{{Name: "a", Value: task.Int(t.A)}, {Name: "b", Value: task.Int(t.B)}}
}
func (t *addTask) ID() uuid.UUID { return t.ComputeID(t) }
func (t *addTask) Output() target.Target {
	return target.NewInMemoryTarget(t.store, t.ID().String())
}
func (t *addTask) Complete(ctx context.Context) (bool, error) { return t.CompleteViaOutput(ctx, t) }
func (t *addTask) Run(ctx context.Context, gen task.Generator) error {
	t.mu.Lock()
	t.ran++
	t.mu.Unlock()
	target.NewInMemoryTarget(t.store, t.ID().String()).Write(t.A + t.B)
	return nil
}
func (t *addTask) runCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ran
}

func newAdd(store *target.InMemoryStore, a, b int64) *addTask {
	return &addTask{A: a, B: b, store: store}
}

// depTask carries an explicit static dependency list for building
// small diamond/linear graphs without relying on shared field values.
type depTask struct {
	task.Base
	Name string
	Deps []task.Task
}

func (t *depTask) TypeID() task.TypeID { return schedNS("dep") }
func (t *depTask) Version() string     { return "1" }
func (t *depTask) Fields() []task.Field {
	deps := make([]task.Value, len(t.Deps))
	for i, d := range t.Deps {
		deps[i] = task.TaskValue(d)
	}
	return []task.Field{
		{Name: "name", Value: task.Str(t.Name)},
		{Name: "deps", Value: task.List(deps...)},
	}
}
func (t *depTask) ID() uuid.UUID { return t.ComputeID(t) }
func (t *depTask) Requires() task.TaskStruct {
	seq := make(task.Seq, len(t.Deps))
	for i, d := range t.Deps {
		seq[i] = task.Of(d)
	}
	return seq
}
func (t *depTask) Complete(ctx context.Context) (bool, error) { return false, nil }
func (t *depTask) Run(context.Context, task.Generator) error  { return nil }

func newDep(name string, deps ...task.Task) *depTask {
	return &depTask{Name: name, Deps: deps}
}

// cycleTask identifies itself by Name alone, independent of Deps, so a
// cycle can be wired up after construction (a.Deps = []task.Task{b},
// b.Deps = []task.Task{a}) without ID computation recursing back into
// itself through a TaskValue-encoded dependency field - content
// addressing otherwise makes a genuine ID cycle impossible to even
// construct, let alone detect.
type cycleTask struct {
	task.Base
	Name string
	Deps []task.Task
}

func (t *cycleTask) TypeID() task.TypeID  { return schedNS("cycle") }
func (t *cycleTask) Version() string      { return "1" }
func (t *cycleTask) Fields() []task.Field { return []task.Field{{Name: "name", Value: task.Str(t.Name)}} }
func (t *cycleTask) ID() uuid.UUID        { return t.ComputeID(t) }
func (t *cycleTask) Requires() task.TaskStruct {
	seq := make(task.Seq, len(t.Deps))
	for i, d := range t.Deps {
		seq[i] = task.Of(d)
	}
	return seq
}
func (t *cycleTask) Complete(context.Context) (bool, error)       { return false, nil }
func (t *cycleTask) Run(context.Context, task.Generator) error    { return nil }

func newCycle(name string) *cycleTask { return &cycleTask{Name: name} }

// failTask always fails Run with errMsg.
type failTask struct {
	task.Base
	Name   string
	ErrMsg string
}

func (t *failTask) TypeID() task.TypeID  { return schedNS("fail") }
func (t *failTask) Version() string      { return "1" }
func (t *failTask) Fields() []task.Field { return []task.Field{{Name: "name", Value: task.Str(t.Name)}} }
func (t *failTask) ID() uuid.UUID        { return t.ComputeID(t) }
func (t *failTask) Complete(context.Context) (bool, error) { return false, nil }
func (t *failTask) Run(context.Context, task.Generator) error {
	return errors.New(t.ErrMsg)
}

func newFail(name, errMsg string) *failTask { return &failTask{Name: name, ErrMsg: errMsg} }

// slowTask takes delay to complete-check (Run returns at once), for
// the pre-check concurrency benchmark.
type slowTask struct {
	task.Base
	Name  string
	Delay time.Duration
}

func (t *slowTask) TypeID() task.TypeID  { return schedNS("slow") }
func (t *slowTask) Version() string      { return "1" }
func (t *slowTask) Fields() []task.Field { return []task.Field{{Name: "name", Value: task.Str(t.Name)}} }
func (t *slowTask) ID() uuid.UUID        { return t.ComputeID(t) }
func (t *slowTask) Complete(ctx context.Context) (bool, error) {
	select {
	case <-time.After(t.Delay):
	case <-ctx.Done():
		return false, ctx.Err()
	}
	return true, nil
}
func (t *slowTask) Run(context.Context, task.Generator) error { return nil }

func newSlow(name string, delay time.Duration) *slowTask { return &slowTask{Name: name, Delay: delay} }

// yieldingTask yields deps mid-run, exercising the dynamic-dependency
// generator path (spec.md Scenario C).
type yieldingTask struct {
	task.Base
	Name string
	Deps []task.Task

	mu       sync.Mutex
	resumed  bool
}

func (t *yieldingTask) TypeID() task.TypeID { return schedNS("yield") }
func (t *yieldingTask) Version() string     { return "1" }
func (t *yieldingTask) Fields() []task.Field {
	return []task.Field{{Name: "name", Value: task.Str(t.Name)}}
}
func (t *yieldingTask) ID() uuid.UUID                          { return t.ComputeID(t) }
func (t *yieldingTask) Complete(context.Context) (bool, error) { return false, nil }
func (t *yieldingTask) Run(ctx context.Context, gen task.Generator) error {
	seq := make(task.Seq, len(t.Deps))
	for i, d := range t.Deps {
		seq[i] = task.Of(d)
	}
	if err := gen.Yield(ctx, seq); err != nil {
		return err
	}
	t.mu.Lock()
	t.resumed = true
	t.mu.Unlock()
	return nil
}
func (t *yieldingTask) didResume() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resumed
}

func newYielding(name string, deps ...task.Task) *yieldingTask {
	return &yieldingTask{Name: name, Deps: deps}
}

func init() {
	task.Register(schedNS("add"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: add is a test-only fixture, not transport-decodable")
	})
	task.Register(schedNS("dep"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: dep is a test-only fixture, not transport-decodable")
	})
	task.Register(schedNS("fail"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: fail is a test-only fixture, not transport-decodable")
	})
	task.Register(schedNS("slow"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: slow is a test-only fixture, not transport-decodable")
	})
	task.Register(schedNS("yield"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: yield is a test-only fixture, not transport-decodable")
	})
	task.Register(schedNS("cycle"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		return nil, errors.New("stardag/scheduler: cycle is a test-only fixture, not transport-decodable")
	})
}
