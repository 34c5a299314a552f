package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/task"
)

// node is one task's bookkeeping inside a build's graph: its static and
// (generator-yielded) dynamic dependency sets, its reverse edges for
// SKIPPED propagation, and the countdown that tells it when it is ready
// to leave WAITING_STATIC_DEPS.
type node struct {
	id      uuid.UUID
	task    task.Task
	ownerID string // stable for this node's lifetime, spec.md §4.3.2

	mu          sync.Mutex
	state       TaskState
	dynamicDeps []uuid.UUID
	downstream  []uuid.UUID
	waiters     []*depBarrier
	err         error

	remaining atomic.Int64
	ready     chan struct{}
	readyOnce sync.Once
}

func newNode(t task.Task) *node {
	return &node{
		id:      t.ID(),
		task:    t,
		ownerID: uuid.NewString(),
		state:   StateNew,
		ready:   make(chan struct{}),
	}
}

func (n *node) setState(s TaskState) {
	n.mu.Lock()
	n.state = s
	n.mu.Unlock()
}

func (n *node) getState() TaskState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// signalReady closes ready exactly once, waking the node's dispatch
// goroutine out of WAITING_STATIC_DEPS (dynamic waits use depBarrier).
func (n *node) signalReady() {
	n.readyOnce.Do(func() { close(n.ready) })
}

// addDownstream records that downstreamID depends on n. Safe to call
// concurrently with snapshotDownstream (a sibling task completing or
// being skipped while n is freshly wired in by a Generator.Yield).
func (n *node) addDownstream(downstreamID uuid.UUID) {
	n.mu.Lock()
	n.downstream = append(n.downstream, downstreamID)
	n.mu.Unlock()
}

// snapshotDownstream returns a copy of n's current downstream edges.
func (n *node) snapshotDownstream() []uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]uuid.UUID(nil), n.downstream...)
}

// staticDepIDs records the dependency ids this node was discovered
// with, for the registry's register_task payload.
func (n *node) staticDepIDs(g *graph) []uuid.UUID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.upstream[n.id]
}

// graph is the discovered DAG for one build: every reachable task
// indexed by id, plus the static-dependency adjacency (spec.md §4.2.3
// item 1). Dynamic deps accumulate on individual nodes as Generator
// .Yield calls arrive and never appear here.
type graph struct {
	mu       sync.Mutex
	nodes    map[uuid.UUID]*node
	upstream map[uuid.UUID][]uuid.UUID // task id -> its static deps
}

func newGraph() *graph {
	return &graph{nodes: map[uuid.UUID]*node{}, upstream: map[uuid.UUID][]uuid.UUID{}}
}

// discover flattens roots' Requires() closures depth-first, building
// the node set and static adjacency, and detects dependency cycles.
func discover(roots []task.Task) (*graph, error) {
	g := newGraph()
	visiting := map[uuid.UUID]bool{}
	for _, root := range roots {
		if err := g.visit(root, visiting, nil, nil, nil); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// visit depth-first discovers t's Requires() closure, adding new nodes
// and static adjacency to g. When fresh is non-nil, every node created
// by this call (not already present in g) is appended to it - used by
// Generator.Yield to know which of a dynamic dependency's own
// transitive requirements are new and need dispatching.
//
// forbidden is non-nil only when called from addDynamic: it names ids
// that must not appear anywhere in t's closure, including inside
// already-resolved subgraphs that the plain visiting stack can no
// longer see. A yielded dependency that loops back to its own yielding
// task this way is a real cycle (the task now waits on the dep via the
// new dynamic edge, and the dep already waits on the task via a static
// or earlier-dynamic one), just one that closes through nodes this DFS
// call never walks onto because they were resolved in an earlier pass.
func (g *graph) visit(t task.Task, visiting map[uuid.UUID]bool, path []string, fresh *[]*node, forbidden map[uuid.UUID]bool) error {
	id := t.ID()
	label := describeTask(t)
	if visiting[id] {
		return &task.CycleError{Path: append(append([]string{}, path...), label)}
	}
	if _, ok := g.nodes[id]; ok {
		if forbidden != nil && g.ancestorsContain(id, forbidden, map[uuid.UUID]bool{}) {
			return &task.CycleError{Path: append(append([]string{}, path...), label)}
		}
		return nil
	}

	visiting[id] = true
	path = append(path, label)

	deps := task.Flatten(t.Requires())
	depIDs := make([]uuid.UUID, 0, len(deps))
	for _, dep := range deps {
		depIDs = append(depIDs, dep.ID())
		if err := g.visit(dep, visiting, path, fresh, forbidden); err != nil {
			return err
		}
	}

	n := newNode(t)
	g.nodes[id] = n
	g.upstream[id] = depIDs
	for _, depID := range depIDs {
		if depNode, ok := g.nodes[depID]; ok {
			depNode.addDownstream(id)
		}
	}
	if fresh != nil {
		*fresh = append(*fresh, n)
	}

	delete(visiting, id)
	return nil
}

func describeTask(t task.Task) string {
	return fmt.Sprintf("%s#%s", t.TypeID(), t.ID().String()[:8])
}

// ancestorsContain reports whether id, or anything id transitively
// depends on through already-resolved edges - static (g.upstream) or
// dynamic (a node's own dynamicDeps, wired by an earlier Yield) - is in
// forbidden. Resolved nodes never get re-walked by the ordinary visit
// DFS (it short-circuits on g.nodes), so this is the only place a
// dynamic yield's reachability to an already-discovered ancestor like
// its own yielding task gets checked, whichever kind of edge the chain
// back to it is made of. seen bounds the walk - the already-resolved
// subgraph is acyclic by this function's own invariant, but guarding
// against re-visits keeps it linear. Callers hold g.mu, the same lock
// addDynamic mutates dynamicDeps under.
func (g *graph) ancestorsContain(id uuid.UUID, forbidden, seen map[uuid.UUID]bool) bool {
	if forbidden[id] {
		return true
	}
	if seen[id] {
		return false
	}
	seen[id] = true
	for _, depID := range g.upstream[id] {
		if g.ancestorsContain(depID, forbidden, seen) {
			return true
		}
	}
	if n, ok := g.nodes[id]; ok {
		for _, depID := range n.dynamicDeps {
			if g.ancestorsContain(depID, forbidden, seen) {
				return true
			}
		}
	}
	return false
}

// addDynamic wires newDeps as additional dependencies of parent (a
// Generator.Yield call), recursively discovering each dep's own
// Requires() closure exactly as the initial discovery pass would have.
// Returns the directly-yielded node for each newDep (in order, for the
// depBarrier the caller waits on) and every node newly created by this
// call, transitively (for the caller to register and dispatch).
//
// Every newDep is checked against parent itself: a dep whose closure
// (static or already-wired-dynamic) reaches back to parent would leave
// parent waiting on the dep via this new edge while the dep already
// waits on parent, a cycle that can never resolve. That surfaces as a
// *task.CycleError instead of the new edge being wired, so the caller
// fails the yielding task rather than deadlocking in Build.Run.
func (g *graph) addDynamic(parent uuid.UUID, newDeps []task.Task) (yielded []*node, fresh []*node, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	visiting := map[uuid.UUID]bool{}
	forbidden := map[uuid.UUID]bool{parent: true}
	parentNode := g.nodes[parent]
	yielded = make([]*node, 0, len(newDeps))
	for _, t := range newDeps {
		id := t.ID()
		if _, ok := g.nodes[id]; !ok {
			if verr := g.visit(t, visiting, nil, &fresh, forbidden); verr != nil {
				return nil, nil, verr
			}
		} else if g.ancestorsContain(id, forbidden, map[uuid.UUID]bool{}) {
			return nil, nil, &task.CycleError{Path: []string{describeTask(t)}}
		}
		n := g.nodes[id]
		n.addDownstream(parent)
		if parentNode != nil {
			parentNode.dynamicDeps = append(parentNode.dynamicDeps, id)
		}
		yielded = append(yielded, n)
	}
	return yielded, fresh, nil
}

func (g *graph) get(id uuid.UUID) *node {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.nodes[id]
}

func (g *graph) all() []*node {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*node, 0, len(g.nodes))
	for _, n := range g.nodes {
		out = append(out, n)
	}
	return out
}
