package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/backoff"
	"github.com/stardag-dev/stardag-go/internal/lock"
	"github.com/stardag-dev/stardag-go/internal/logger"
	"github.com/stardag-dev/stardag-go/internal/registry"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// ErrExitEarly is returned by Run when the build gave up dispatching new
// work because every still-pending task's lock was held by other
// builds for the entire backoff window, rather than because any task
// of this build actually failed (spec.md §4.2.3, BUILD_EXIT_EARLY).
var ErrExitEarly = errors.New("stardag: build exited early, remaining tasks owned by other builds")

const defaultLockTTL = 30 * time.Second

// Build drives one set of root tasks through the state machine described
// in spec.md §4.2: discovery, a concurrent completion pre-check,
// lock-gated dispatch onto a Runner, and registry event emission.
type Build struct {
	graph *graph
	roots []task.Task

	registry   registry.Client
	lockClient lock.GlobalConcurrencyLock
	lockTTL    time.Duration
	lockPolicy backoff.RetryPolicy

	failMode            FailMode
	modeSelector        ModeSelector
	runners             map[ExecutionMode]Runner
	preCheckConcurrency int

	log         logger.Logger
	description string

	buildID     string
	externalCtx context.Context

	wg         sync.WaitGroup
	dispatched sync.Map // uuid.UUID -> struct{}, guards double-dispatch of dynamic nodes

	runFailed  atomic.Bool
	lockGaveUp atomic.Bool
	firstErr   atomic.Pointer[error]
}

// Option configures a Build at construction time.
type Option func(*Build)

func WithRegistry(c registry.Client) Option { return func(b *Build) { b.registry = c } }
func WithLock(l lock.GlobalConcurrencyLock) Option {
	return func(b *Build) { b.lockClient = l }
}
func WithLockTTL(d time.Duration) Option           { return func(b *Build) { b.lockTTL = d } }
func WithLockBackoff(p backoff.RetryPolicy) Option { return func(b *Build) { b.lockPolicy = p } }
func WithFailMode(m FailMode) Option               { return func(b *Build) { b.failMode = m } }
func WithModeSelector(s ModeSelector) Option       { return func(b *Build) { b.modeSelector = s } }
func WithLogger(l logger.Logger) Option            { return func(b *Build) { b.log = l } }
func WithDescription(d string) Option              { return func(b *Build) { b.description = d } }
func WithPreCheckConcurrency(n int) Option {
	return func(b *Build) { b.preCheckConcurrency = n }
}

// WithRunner registers the Runner used for tasks whose ModeSelector
// result is mode.
func WithRunner(mode ExecutionMode, r Runner) Option {
	return func(b *Build) { b.runners[mode] = r }
}

// NewBuild discovers roots' full dependency graph and prepares a Build
// to run it. Discovery failures (cycles) are reported immediately,
// before any registry or lock interaction.
func NewBuild(roots []task.Task, opts ...Option) (*Build, error) {
	g, err := discover(roots)
	if err != nil {
		return nil, err
	}

	b := &Build{
		graph:               g,
		roots:               roots,
		registry:            registry.NoOp{},
		lockClient:          lock.NewMemory(0),
		lockTTL:             defaultLockTTL,
		failMode:            FailFast,
		modeSelector:        DefaultModeSelector,
		runners:             map[ExecutionMode]Runner{ModeCooperative: NewCooperativeRunner(0)},
		preCheckConcurrency: defaultPreCheckConcurrency,
		log:                 logger.NewLogger(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

// Summary reports the outcome of a completed Run.
type Summary struct {
	BuildID string
	States  map[uuid.UUID]TaskState
}

// Run executes the build to completion: discovery already happened in
// NewBuild, so Run performs the completion pre-check, registers every
// node with the registry, dispatches the initial wavefront, and blocks
// until every reachable node reaches a terminal state or ctx is
// cancelled.
func (b *Build) Run(ctx context.Context) (*Summary, error) {
	b.externalCtx = ctx
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	buildID, err := b.registry.StartBuild(ctx, b.roots, b.description)
	if err != nil {
		return nil, fmt.Errorf("stardag: starting build: %w", err)
	}
	b.buildID = buildID

	nodes := b.graph.all()
	if err := precheckCompletions(runCtx, nodes, b.preCheckConcurrency); err != nil {
		_ = b.registry.FailBuild(ctx, b.buildID, err.Error())
		return nil, fmt.Errorf("stardag: completion pre-check: %w", err)
	}

	for _, n := range nodes {
		depIDs := n.staticDepIDs(b.graph)
		if err := b.registry.RegisterTask(runCtx, b.buildID, n.task, depIDs); err != nil {
			_ = b.registry.FailBuild(ctx, b.buildID, err.Error())
			return nil, fmt.Errorf("stardag: registering task %s: %w", n.id, err)
		}
		n.remaining.Store(int64(countNonTerminal(b.graph, depIDs)))
		if n.remaining.Load() == 0 {
			n.signalReady()
		}
	}

	for _, n := range nodes {
		b.dispatch(runCtx, n, cancel, true)
	}

	b.wg.Wait()

	return b.finish(ctx, cancel)
}

// countNonTerminal counts depIDs not already COMPLETED by the pre-check,
// i.e. how many completions this node must still wait on.
func countNonTerminal(g *graph, depIDs []uuid.UUID) int {
	n := 0
	for _, id := range depIDs {
		if dep := g.get(id); dep != nil && dep.getState() != StateCompleted {
			n++
		}
	}
	return n
}

// dispatch launches n's goroutine exactly once. precked is true for
// nodes that already went through the bulk precheckCompletions pass, so
// runNode can trust their state instead of re-checking Complete.
func (b *Build) dispatch(ctx context.Context, n *node, cancelRun context.CancelFunc, precked bool) {
	if _, loaded := b.dispatched.LoadOrStore(n.id, struct{}{}); loaded {
		return
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runNode(ctx, n, cancelRun, precked)
	}()
}

// registerDynamic registers one freshly-discovered node and arms its
// static-dep countdown, but does not dispatch it yet. Generator.Yield
// calls this for every node in a fresh subgraph, in dependency order,
// before dispatching any of them - so a leaf that completes instantly
// can never race a decrement against a downstream node whose countdown
// hasn't been armed yet.
func (b *Build) registerDynamic(ctx context.Context, n *node) {
	depIDs := n.staticDepIDs(b.graph)
	if err := b.registry.RegisterTask(ctx, b.buildID, n.task, depIDs); err != nil {
		b.log.Warnf("stardag: registering dynamically-yielded task %s: %v", n.id, err)
	}
	n.remaining.Store(int64(countNonTerminal(b.graph, depIDs)))
}

// dispatchDynamic launches n's dispatch goroutine. Unlike dispatch, it
// doesn't gate on cancelRun (dynamic nodes don't trigger fail-fast
// cancellation of the whole build themselves; their parent's Yield call
// already observed the shared ctx).
func (b *Build) dispatchDynamic(ctx context.Context, n *node) {
	if _, loaded := b.dispatched.LoadOrStore(n.id, struct{}{}); loaded {
		return
	}
	if n.remaining.Load() == 0 {
		n.signalReady()
	}
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.runNode(ctx, n, nil, false)
	}()
}

// watch registers barrier to be notified when n reaches a terminal
// state, for a Generator.Yield call waiting on a batch of dynamic deps.
func (b *Build) watch(n *node, barrier *depBarrier) {
	n.mu.Lock()
	if n.state.IsTerminal() {
		err := n.err
		n.mu.Unlock()
		barrier.markDone(err)
		return
	}
	n.waiters = append(n.waiters, barrier)
	n.mu.Unlock()
}

func (b *Build) runnerFor(t task.Task) Runner {
	mode := b.modeSelector(t)
	if r, ok := b.runners[mode]; ok {
		return r
	}
	return b.runners[ModeCooperative]
}

// runNode drives one node from wherever the pre-check left it through
// to a terminal state.
func (b *Build) runNode(ctx context.Context, n *node, cancelRun context.CancelFunc, precked bool) {
	if !precked && n.getState() != StateCompleted {
		// Dynamically-yielded nodes never went through the bulk
		// pre-check: perform the cache-hit check here instead.
		complete, err := n.task.Complete(ctx)
		if err != nil {
			b.failNode(ctx, n, fmt.Errorf("stardag: checking completion of %s: %w", n.id, err), cancelRun)
			return
		}
		if complete {
			n.setState(StateCompleted)
		}
	}

	if n.getState() == StateCompleted {
		b.notify(ctx, "reference", n, b.registry.ReferenceTask(ctx, b.buildID, n.task))
		b.completeNode(ctx, n)
		return
	}

	n.setState(StatePending)
	n.setState(StateWaitingStaticDeps)
	select {
	case <-n.ready:
	case <-ctx.Done():
		b.cancelNode(ctx, n)
		return
	}
	if n.getState() == StateSkipped {
		b.notify(ctx, "skip", n, b.registry.SkipTask(ctx, b.buildID, n.task))
		b.finishFailedOrSkipped(n, errors.New("stardag: skipped, an upstream dependency failed"))
		return
	}

	if b.failMode == FailFast && b.runFailed.Load() {
		n.setState(StateSkipped)
		b.notify(ctx, "skip", n, b.registry.SkipTask(ctx, b.buildID, n.task))
		b.finishFailedOrSkipped(n, errors.New("stardag: skipped, build already failed (fail-fast)"))
		return
	}

	ownerID := n.ownerID
	policy := b.lockPolicy
	if policy == nil {
		policy = lock.DefaultBackoffPolicy()
	}
	retrier := backoff.NewRetrier(policy)
	var acquired lock.AcquireResult
	for {
		n.setState(StateAcquiringLock)
		res, err := b.lockClient.Acquire(ctx, n.id.String(), ownerID, b.lockTTL, true)
		if err != nil {
			b.failNode(ctx, n, fmt.Errorf("stardag: acquiring lock for %s: %w", n.id, err), cancelRun)
			return
		}
		if res.Status == lock.StatusAcquired || res.Status == lock.StatusAlreadyCompleted {
			acquired = res
			break
		}

		n.setState(StateWaitingForLock)
		b.notify(ctx, "waiting_for_lock", n, b.registry.WaitingForLock(ctx, b.buildID, n.task, res.Status.String()))

		if waitErr := retrier.Next(ctx, fmt.Errorf("%s", res.Status)); waitErr != nil {
			b.lockGaveUp.Store(true)
			b.finishFailedOrSkipped(n, fmt.Errorf("stardag: giving up waiting for lock on %s: %w", n.id, waitErr))
			return
		}
	}

	if acquired.Status == lock.StatusAlreadyCompleted {
		n.setState(StateCompleted)
		b.notify(ctx, "reference", n, b.registry.ReferenceTask(ctx, b.buildID, n.task))
		b.completeNode(ctx, n)
		return
	}

	renewer := lock.StartRenewer(ctx, b.lockClient, n.id.String(), ownerID, b.lockTTL)

	n.setState(StateRunning)
	b.notify(ctx, "start", n, b.registry.StartTask(ctx, b.buildID, n.task))

	runCtx, stopRun := context.WithCancel(ctx)
	lockLost := make(chan struct{})
	go func() {
		select {
		case err, ok := <-renewer.Lost:
			if ok {
				b.log.Errorf("stardag: %v", err)
			}
			stopRun()
			close(lockLost)
		case <-runCtx.Done():
		}
	}()

	gen := &generator{build: b, parentID: n.id}
	runErr := b.runnerFor(n.task).Run(runCtx, n.task, gen)
	stopRun()
	renewer.Stop()

	select {
	case <-lockLost:
		if runErr == nil {
			runErr = fmt.Errorf("stardag: lost lock for %s while running", n.id)
		}
	default:
	}

	if runErr != nil {
		_, _ = b.lockClient.Release(ctx, n.id.String(), ownerID, false)
		b.failNode(ctx, n, runErr, cancelRun)
		return
	}

	n.setState(StateUploadingAssets)
	if assets, assetErr := n.task.RegistryAssets(ctx); assetErr != nil {
		b.log.Warnf("stardag: listing assets for %s: %v", n.id, assetErr)
	} else if len(assets) > 0 {
		if err := b.registry.UploadAssets(ctx, b.buildID, n.task, assets); err != nil {
			b.log.Warnf("stardag: uploading assets for %s: %v", n.id, err)
		}
	}

	_, _ = b.lockClient.Release(ctx, n.id.String(), ownerID, true)
	n.setState(StateCompleted)
	b.notify(ctx, "complete", n, b.registry.CompleteTask(ctx, b.buildID, n.task))
	b.completeNode(ctx, n)
}

// notify logs (rather than fails the build on) a swallowed registry
// delivery error: a registry outage must never abort a running build
// (spec.md §4.4).
func (b *Build) notify(ctx context.Context, op string, n *node, err error) {
	if err != nil {
		b.log.Warnf("stardag: registry %s event for %s: %v", op, n.id, err)
	}
}

// cancelNode handles ctx.Done() firing while n waited on its deps or
// its lock. Distinguishes true external cancellation (spec.md §5) from
// this build's own fail-fast internal cancellation, which surfaces the
// node as FAILED, not CANCELLED - CANCELLED is reserved for explicit
// external cancellation, never the scheduler reacting to a task error.
func (b *Build) cancelNode(ctx context.Context, n *node) {
	if b.externalCtx.Err() != nil {
		n.setState(StateCancelled)
		b.notify(ctx, "cancel", n, b.registry.CancelTask(ctx, b.buildID, n.task))
		b.finishFailedOrSkipped(n, context.Canceled)
		return
	}
	n.setState(StateFailed)
	b.notify(ctx, "fail", n, b.registry.FailTask(ctx, b.buildID, n.task, "cancelled: upstream fail-fast"))
	b.finishFailedOrSkipped(n, errors.New("stardag: cancelled by fail-fast"))
}

// failNode marks n FAILED, applies the build's failure-mode policy, and
// propagates.
func (b *Build) failNode(ctx context.Context, n *node, err error, cancelRun context.CancelFunc) {
	n.mu.Lock()
	n.state = StateFailed
	n.err = err
	n.mu.Unlock()

	b.runFailed.Store(true)
	b.recordErr(err)
	b.notify(ctx, "fail", n, b.registry.FailTask(ctx, b.buildID, n.task, err.Error()))

	if b.failMode == FailFast && cancelRun != nil {
		cancelRun()
	} else if b.failMode == BestEffort {
		b.skipDownstream(ctx, n)
	}

	b.finishFailedOrSkipped(n, err)
}

func (b *Build) recordErr(err error) {
	b.firstErr.CompareAndSwap(nil, &err)
}

// skipDownstream marks n's transitive downstream closure SKIPPED,
// waking any dispatch goroutine blocked waiting on it (spec.md §4.2.4
// best-effort mode).
func (b *Build) skipDownstream(ctx context.Context, n *node) {
	visited := map[uuid.UUID]bool{}
	var walk func(id uuid.UUID)
	walk = func(id uuid.UUID) {
		if visited[id] {
			return
		}
		visited[id] = true
		down := b.graph.get(id)
		if down == nil {
			return
		}
		down.mu.Lock()
		if down.state.IsTerminal() {
			down.mu.Unlock()
			return
		}
		down.state = StateSkipped
		down.mu.Unlock()
		down.signalReady()
		for _, d2 := range down.snapshotDownstream() {
			walk(d2)
		}
	}
	for _, d := range n.snapshotDownstream() {
		walk(d)
	}
}

// completeNode propagates n's success to its waiters (a Generator.Yield
// barrier) and decrements its downstream nodes' static-dep countdown.
func (b *Build) completeNode(ctx context.Context, n *node) {
	b.wakeWaiters(n, nil)
	for _, downID := range n.snapshotDownstream() {
		down := b.graph.get(downID)
		if down == nil {
			continue
		}
		if down.remaining.Add(-1) == 0 {
			down.signalReady()
		}
	}
}

// finishFailedOrSkipped propagates n's failure to any Generator.Yield
// barrier waiting on it. Downstream static-dep countdowns are
// deliberately NOT decremented here: in best-effort mode those nodes
// were already marked SKIPPED directly by skipDownstream, and in
// fail-fast mode ctx cancellation reaches them through cancelNode.
func (b *Build) finishFailedOrSkipped(n *node, err error) {
	b.wakeWaiters(n, err)
}

func (b *Build) wakeWaiters(n *node, err error) {
	n.mu.Lock()
	waiters := n.waiters
	n.waiters = nil
	n.mu.Unlock()
	for _, w := range waiters {
		w.markDone(err)
	}
}

// finish reports the build-level terminal event and assembles the
// Summary once every dispatched node has reached a terminal state.
func (b *Build) finish(ctx context.Context, cancelRun context.CancelFunc) (*Summary, error) {
	cancelRun()

	states := make(map[uuid.UUID]TaskState, len(b.graph.all()))
	for _, n := range b.graph.all() {
		states[n.id] = n.getState()
	}
	summary := &Summary{BuildID: b.buildID, States: states}

	switch {
	case b.externalCtx.Err() != nil:
		_ = b.registry.CancelBuild(ctx, b.buildID)
		return summary, context.Cause(b.externalCtx)

	case b.runFailed.Load():
		msg := "task failure"
		if p := b.firstErr.Load(); p != nil {
			msg = (*p).Error()
		}
		_ = b.registry.FailBuild(ctx, b.buildID, msg)
		if p := b.firstErr.Load(); p != nil {
			return summary, *p
		}
		return summary, errors.New("stardag: build failed")

	case b.lockGaveUp.Load():
		_ = b.registry.ExitEarlyBuild(ctx, b.buildID)
		return summary, ErrExitEarly

	default:
		if err := b.registry.CompleteBuild(ctx, b.buildID); err != nil {
			b.log.Warnf("stardag: completing build: %v", err)
		}
		return summary, nil
	}
}
