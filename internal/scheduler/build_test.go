package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stardag-dev/stardag-go/internal/backoff"
	"github.com/stardag-dev/stardag-go/internal/lock"
	"github.com/stardag-dev/stardag-go/internal/registry"
	"github.com/stardag-dev/stardag-go/internal/registry/registrytest"
	"github.com/stardag-dev/stardag-go/internal/target"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// Scenario A: a simple task with no dependencies runs to completion and
// its output is observable afterward.
func TestBuildSimpleTask(t *testing.T) {
	store := target.NewInMemoryStore()
	a := newAdd(store, 2, 3)

	b, err := NewBuild([]task.Task{a})
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.States[a.ID()]; got != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", got)
	}
	if a.runCount() != 1 {
		t.Fatalf("runCount = %d, want 1", a.runCount())
	}
	v, ok := target.NewInMemoryTarget(store, a.ID().String()).Read()
	if !ok || v != int64(5) {
		t.Fatalf("stored output = %v, %v, want 5, true", v, ok)
	}
}

// Scenario B: a second build over a task whose output already exists
// re-references it via the registry instead of re-running it.
func TestBuildCacheHitReferencesInsteadOfRunning(t *testing.T) {
	srv := registrytest.New()
	defer srv.Close()
	client := registry.NewHTTPClient(srv.URL, 5*time.Second, "", "", "")

	store := target.NewInMemoryStore()
	first := newAdd(store, 1, 1)
	b1, err := NewBuild([]task.Task{first}, WithRegistry(client))
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	if _, err := b1.Run(context.Background()); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if first.runCount() != 1 {
		t.Fatalf("first runCount = %d, want 1", first.runCount())
	}

	// Same fields -> same content-addressed id -> same cached output.
	second := newAdd(store, 1, 1)
	b2, err := NewBuild([]task.Task{second}, WithRegistry(client))
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, err := b2.Run(context.Background())
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if got := summary.States[second.ID()]; got != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", got)
	}
	if second.runCount() != 0 {
		t.Fatalf("second runCount = %d, want 0 (cache hit, never ran)", second.runCount())
	}

	kinds := srv.EventKinds()
	var pending, started, referenced int
	for _, k := range kinds {
		switch k {
		case "TASK_PENDING":
			pending++
		case "TASK_STARTED":
			started++
		case "TASK_REFERENCED":
			referenced++
		}
	}
	if pending != 1 {
		t.Errorf("TASK_PENDING count = %d, want 1 (idempotent registration)", pending)
	}
	if started != 1 {
		t.Errorf("TASK_STARTED count = %d, want 1 (only the first build ran it)", started)
	}
	if referenced != 1 {
		t.Errorf("TASK_REFERENCED count = %d, want 1 (the cache-hit build)", referenced)
	}
}

// Scenario C: a task that yields dynamic dependencies mid-run suspends,
// waits for them, and resumes once they complete.
func TestBuildYieldingTaskResumesAfterDynamicDeps(t *testing.T) {
	leaf := newDep("dyn-leaf")
	y := newYielding("yielder", leaf)

	b, err := NewBuild([]task.Task{y})
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.States[y.ID()]; got != StateCompleted {
		t.Fatalf("yielder state = %s, want COMPLETED", got)
	}
	if got := summary.States[leaf.ID()]; got != StateCompleted {
		t.Fatalf("leaf state = %s, want COMPLETED", got)
	}
	if !y.didResume() {
		t.Fatal("yielder never resumed after its dynamic dependency completed")
	}
}

// A generator-yielded dependency whose own Requires() closure loops
// back to the yielding task itself must fail that task outright
// instead of leaving Build.Run blocked in wg.Wait() forever: the task
// would wait on the dep via the new dynamic edge while the dep already
// waits on the task, a cycle neither side can ever resolve.
func TestBuildFailsOnYieldedDependencyCycleBackToSelf(t *testing.T) {
	mid := newYielding("mid")
	loopDep := newCycle("loop-dep")
	loopDep.Deps = []task.Task{mid}
	mid.Deps = []task.Task{loopDep}

	b, err := NewBuild([]task.Task{mid})
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	summary, err := b.Run(ctx)
	if err == nil {
		t.Fatal("Run: expected a cycle error, got nil")
	}
	var cycleErr *task.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("Run: err = %v, want *task.CycleError", err)
	}
	if got := summary.States[mid.ID()]; got != StateFailed {
		t.Fatalf("mid state = %s, want FAILED", got)
	}
	if mid.didResume() {
		t.Error("mid: should never resume after its own yield cycles")
	}
}

// Scenario D: two builds racing over the same global concurrency lock
// for an identical task must only actually execute it once.
func TestBuildGlobalLockDedupesConcurrentRuns(t *testing.T) {
	store := target.NewInMemoryStore()
	shared := newAdd(store, 10, 20)
	sharedLock := lock.NewMemory(0)
	fastBackoff := backoff.NewConstantBackoffPolicy(5*time.Millisecond, 0)

	run := func() error {
		b, err := NewBuild([]task.Task{shared}, WithLock(sharedLock), WithLockBackoff(fastBackoff))
		if err != nil {
			return err
		}
		_, err = b.Run(context.Background())
		return err
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = run()
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("build %d: %v", i, err)
		}
	}
	if got := shared.runCount(); got != 1 {
		t.Fatalf("runCount = %d, want 1 (deduped by the shared lock)", got)
	}
}

// Scenario E: fail-fast mode cancels the failed task's still-waiting
// downstream closure (surfaced as FAILED, never CANCELLED - that state
// is reserved for explicit external cancellation) and surfaces the
// task's error from Run.
func TestBuildFailFastAbortsDownstream(t *testing.T) {
	failing := newFail("boom", "simulated task failure")
	downstream := newDep("downstream", failing)

	b, err := NewBuild([]task.Task{downstream}, WithFailMode(FailFast))
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, runErr := b.Run(context.Background())
	if runErr == nil {
		t.Fatal("Run: expected the failing task's error, got nil")
	}

	if got := summary.States[failing.ID()]; got != StateFailed {
		t.Errorf("failing state = %s, want FAILED", got)
	}
	if got := summary.States[downstream.ID()]; got != StateFailed {
		t.Errorf("downstream state = %s, want FAILED (aborted by fail-fast, never CANCELLED)", got)
	}
}

// Scenario E variant: best-effort mode instead marks only the failed
// task's downstream closure SKIPPED, leaving independent branches free
// to keep running to completion.
func TestBuildBestEffortSkipsDownstreamOnly(t *testing.T) {
	failing := newFail("boom", "simulated task failure")
	downstream := newDep("downstream", failing)
	sibling := newDep("sibling") // independent of the failure

	b, err := NewBuild([]task.Task{downstream, sibling}, WithFailMode(BestEffort))
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, runErr := b.Run(context.Background())
	if runErr == nil {
		t.Fatal("Run: expected the failing task's error, got nil")
	}

	if got := summary.States[failing.ID()]; got != StateFailed {
		t.Errorf("failing state = %s, want FAILED", got)
	}
	if got := summary.States[downstream.ID()]; got != StateSkipped {
		t.Errorf("downstream state = %s, want SKIPPED", got)
	}
	if got := summary.States[sibling.ID()]; got != StateCompleted {
		t.Errorf("sibling state = %s, want COMPLETED (independent branch unaffected)", got)
	}
}

// Scenario F: a lock held by a crashed owner recovers once its TTL
// expires, letting a fresh build proceed.
func TestBuildRecoversFromExpiredLock(t *testing.T) {
	store := target.NewInMemoryStore()
	a := newAdd(store, 4, 4)
	sharedLock := lock.NewMemory(0)

	ttl := 20 * time.Millisecond
	if _, err := sharedLock.Acquire(context.Background(), a.ID().String(), "dead-owner", ttl, true); err != nil {
		t.Fatalf("seeding dead lock: %v", err)
	}
	time.Sleep(ttl * 3)

	b, err := NewBuild([]task.Task{a}, WithLock(sharedLock), WithLockTTL(ttl))
	if err != nil {
		t.Fatalf("NewBuild: %v", err)
	}
	summary, err := b.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := summary.States[a.ID()]; got != StateCompleted {
		t.Fatalf("state = %s, want COMPLETED", got)
	}
	if a.runCount() != 1 {
		t.Fatalf("runCount = %d, want 1", a.runCount())
	}
}
