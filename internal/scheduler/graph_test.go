package scheduler

import (
	"testing"

	"github.com/stardag-dev/stardag-go/internal/task"
)

func TestDiscoverLinearChain(t *testing.T) {
	leaf := newDep("leaf")
	mid := newDep("mid", leaf)
	root := newDep("root", mid)

	g, err := discover([]task.Task{root})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(g.nodes) != 3 {
		t.Fatalf("len(nodes) = %d, want 3", len(g.nodes))
	}
	if deps := g.upstream[root.ID()]; len(deps) != 1 || deps[0] != mid.ID() {
		t.Errorf("root upstream = %v, want [%s]", deps, mid.ID())
	}
	midNode := g.get(mid.ID())
	if down := midNode.snapshotDownstream(); len(down) != 1 || down[0] != root.ID() {
		t.Errorf("mid downstream = %v, want [%s]", down, root.ID())
	}
}

func TestDiscoverDiamond(t *testing.T) {
	leaf := newDep("leaf")
	left := newDep("left", leaf)
	right := newDep("right", leaf)
	top := newDep("top", left, right)

	g, err := discover([]task.Task{top})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if len(g.nodes) != 4 {
		t.Fatalf("len(nodes) = %d, want 4", len(g.nodes))
	}
	leafNode := g.get(leaf.ID())
	down := leafNode.snapshotDownstream()
	if len(down) != 2 {
		t.Fatalf("leaf downstream = %v, want 2 entries", down)
	}
}

func TestDiscoverCycle(t *testing.T) {
	a := newCycle("a")
	b := newCycle("b")
	b.Deps = []task.Task{a}
	// Wire a cycle back from a to b after the fact: a now (logically)
	// requires b, and b requires a.
	a.Deps = []task.Task{b}

	_, err := discover([]task.Task{b})
	if err == nil {
		t.Fatal("discover: expected cycle error, got nil")
	}
	var cycleErr *task.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("discover: err = %v, want *task.CycleError", err)
	}
	if len(cycleErr.Path) == 0 {
		t.Errorf("cycle path empty")
	}
}

func asCycleError(err error, target **task.CycleError) bool {
	ce, ok := err.(*task.CycleError)
	if !ok {
		return false
	}
	*target = ce
	return true
}

func TestAddDynamicDiscoversTransitiveDeps(t *testing.T) {
	root := newDep("root")
	g, err := discover([]task.Task{root})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	leaf := newDep("dyn-leaf")
	dynamic := newDep("dyn-parent", leaf)

	yielded, fresh, err := g.addDynamic(root.ID(), []task.Task{dynamic})
	if err != nil {
		t.Fatalf("addDynamic: %v", err)
	}
	if len(yielded) != 1 || yielded[0].id != dynamic.ID() {
		t.Fatalf("yielded = %v, want [%s]", yielded, dynamic.ID())
	}
	// fresh must contain both dynamic and its own leaf dependency,
	// discovered transitively, leaf before dynamic (dependency order).
	if len(fresh) != 2 {
		t.Fatalf("len(fresh) = %d, want 2", len(fresh))
	}
	if fresh[0].id != leaf.ID() || fresh[1].id != dynamic.ID() {
		t.Fatalf("fresh order = %v, want [leaf, dynamic]", fresh)
	}

	rootNode := g.get(root.ID())
	if down := g.get(dynamic.ID()).snapshotDownstream(); len(down) != 1 || down[0] != root.ID() {
		t.Errorf("dynamic downstream = %v, want [%s]", down, root.ID())
	}
	if len(rootNode.dynamicDeps) != 1 || rootNode.dynamicDeps[0] != dynamic.ID() {
		t.Errorf("root.dynamicDeps = %v, want [%s]", rootNode.dynamicDeps, dynamic.ID())
	}
}

// TestAddDynamicCycleThroughAncestor covers the case plain per-call
// visiting can't see: mid is a static dependency of root (so mid is
// already fully resolved by the time it yields), and the yielded dep's
// own Requires() closure reaches back to root. Wiring the new dynamic
// edge mid->dep would then close a real cycle dep->root->mid->dep
// entirely through already-resolved nodes, which must fail instead of
// silently wiring.
func TestAddDynamicCycleThroughAncestor(t *testing.T) {
	root := newCycle("root")
	mid := newCycle("mid")
	root.Deps = []task.Task{mid}

	g, err := discover([]task.Task{root})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	dep := newCycle("dyn-dep")
	dep.Deps = []task.Task{root}

	_, _, err = g.addDynamic(mid.ID(), []task.Task{dep})
	if err == nil {
		t.Fatal("addDynamic: expected cycle error, got nil")
	}
	var cycleErr *task.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("addDynamic: err = %v, want *task.CycleError", err)
	}
}

// TestAddDynamicCycleBackToYieldingTaskItself covers the direct
// two-node case: the yielded dep's own closure reaches the very task
// that yielded it.
func TestAddDynamicCycleBackToYieldingTaskItself(t *testing.T) {
	parent := newCycle("parent")
	g, err := discover([]task.Task{parent})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	dep := newCycle("dyn-dep")
	dep.Deps = []task.Task{parent}

	_, _, err = g.addDynamic(parent.ID(), []task.Task{dep})
	if err == nil {
		t.Fatal("addDynamic: expected cycle error, got nil")
	}
	var cycleErr *task.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("addDynamic: err = %v, want *task.CycleError", err)
	}
}

// TestAddDynamicCycleThroughPreviouslyWiredDynamicEdge covers a cycle
// that closes entirely through a dynamic edge from an earlier Yield
// rather than a static Requires() edge: c yields b, and b later yields
// y whose own Requires() reaches back to c. The chain c->b->y->c never
// touches g.upstream for the b->c leg, only node.dynamicDeps, so
// ancestorsContain has to walk both.
func TestAddDynamicCycleThroughPreviouslyWiredDynamicEdge(t *testing.T) {
	c := newCycle("c")
	g, err := discover([]task.Task{c})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	b := newCycle("b")
	if _, _, err := g.addDynamic(c.ID(), []task.Task{b}); err != nil {
		t.Fatalf("addDynamic (c yields b): %v", err)
	}

	y := newCycle("y")
	y.Deps = []task.Task{c}

	_, _, err = g.addDynamic(b.ID(), []task.Task{y})
	if err == nil {
		t.Fatal("addDynamic: expected cycle error, got nil")
	}
	var cycleErr *task.CycleError
	if !asCycleError(err, &cycleErr) {
		t.Fatalf("addDynamic: err = %v, want *task.CycleError", err)
	}
}

func TestAddDynamicIsIdempotentForAlreadyKnownDep(t *testing.T) {
	shared := newDep("shared")
	root := newDep("root", shared)
	g, err := discover([]task.Task{root})
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	yielded, fresh, err := g.addDynamic(root.ID(), []task.Task{shared})
	if err != nil {
		t.Fatalf("addDynamic: %v", err)
	}
	if len(fresh) != 0 {
		t.Errorf("len(fresh) = %d, want 0 for an already-discovered dep", len(fresh))
	}
	if len(yielded) != 1 || yielded[0].id != shared.ID() {
		t.Fatalf("yielded = %v, want [%s]", yielded, shared.ID())
	}
}
