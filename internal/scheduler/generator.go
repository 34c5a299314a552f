package scheduler

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/task"
)

// depBarrier blocks a Generator.Yield call until every task in one
// batch of yielded dependencies reaches a terminal state. This is the
// Go realization of the original's continuation-token resume: instead
// of suspending an async generator and replaying a token, the yielding
// task's own goroutine blocks on a channel that the completing
// dependencies close, then simply returns from Yield and keeps
// executing - see the Generator doc comment in internal/task/task.go.
type depBarrier struct {
	remaining atomic.Int64
	done      chan struct{}
	once      sync.Once
	errMu     sync.Mutex
	err       error
}

func newDepBarrier(n int) *depBarrier {
	b := &depBarrier{done: make(chan struct{})}
	b.remaining.Store(int64(n))
	if n == 0 {
		close(b.done)
	}
	return b
}

func (b *depBarrier) markDone(taskErr error) {
	if taskErr != nil {
		b.errMu.Lock()
		if b.err == nil {
			b.err = taskErr
		}
		b.errMu.Unlock()
	}
	if b.remaining.Add(-1) == 0 {
		b.once.Do(func() { close(b.done) })
	}
}

func (b *depBarrier) wait(ctx context.Context) error {
	select {
	case <-b.done:
		b.errMu.Lock()
		defer b.errMu.Unlock()
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// generator implements task.Generator for one RUNNING task. Yield adds
// deps to the shared graph, marks the parent WAITING_DYNAMIC_DEPS,
// emits TASK_SUSPENDED, blocks until they all complete, then emits
// TASK_RESUMED before returning control to the task body.
type generator struct {
	build    *Build
	parentID uuid.UUID
	yielded  atomic.Bool
}

func (g *generator) Yield(ctx context.Context, deps task.TaskStruct) error {
	if !g.yielded.CompareAndSwap(false, true) {
		return task.ErrAlreadyYielded
	}

	flattened := task.Flatten(deps)
	if len(flattened) == 0 {
		return nil
	}

	parent := g.build.graph.get(g.parentID)
	yielded, fresh, err := g.build.graph.addDynamic(g.parentID, flattened)
	if err != nil {
		return err
	}

	parent.setState(StateWaitingDynamicDeps)
	g.build.notify(ctx, "suspend", parent, g.build.registry.SuspendTask(ctx, g.build.buildID, parent.task))

	barrier := newDepBarrier(len(yielded))
	for _, n := range yielded {
		g.build.watch(n, barrier)
	}
	// Arm every fresh node's countdown before dispatching any of them:
	// a leaf that completes instantly must never race a downstream
	// decrement against a countdown that hasn't been set yet.
	for _, n := range fresh {
		g.build.registerDynamic(ctx, n)
	}
	for _, n := range fresh {
		g.build.dispatchDynamic(ctx, n)
	}

	if err := barrier.wait(ctx); err != nil {
		return err
	}

	parent.setState(StateResuming)
	g.build.notify(ctx, "resume", parent, g.build.registry.ResumeTask(ctx, g.build.buildID, parent.task))
	parent.setState(StateRunning)
	return nil
}
