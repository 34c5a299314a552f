package target

import (
	"context"
	"sync"
)

// InMemoryTarget is a test double that stores its "existence" and an
// arbitrary payload in a shared, mutex-protected map, mirroring the
// original's target/_in_memory.py used throughout its own test suite.
// Multiple InMemoryTarget values constructed with the same key over
// the same store observe each other's writes, so a test can simulate a
// real build-then-rebuild cycle: the second build's targets report
// Exists()==true because the first build's run populated the store.
type InMemoryTarget struct {
	store *InMemoryStore
	key   string
}

// InMemoryStore backs one or more InMemoryTarget values. A nil *InMemoryStore
// pointer is invalid; use NewInMemoryStore.
type InMemoryStore struct {
	mu   sync.RWMutex
	data map[string]any
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{data: map[string]any{}}
}

// NewInMemoryTarget returns a Target backed by store, keyed by key.
func NewInMemoryTarget(store *InMemoryStore, key string) *InMemoryTarget {
	return &InMemoryTarget{store: store, key: key}
}

func (t *InMemoryTarget) Exists(context.Context) (bool, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	_, ok := t.store.data[t.key]
	return ok, nil
}

func (t *InMemoryTarget) Path() string { return "memory://" + t.key }

// Write stores value under this target's key, making Exists report
// true from then on - the test-only stand-in for a task actually
// persisting its output.
func (t *InMemoryTarget) Write(value any) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	t.store.data[t.key] = value
}

// Read returns the stored value and whether it was present.
func (t *InMemoryTarget) Read() (any, bool) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	v, ok := t.store.data[t.key]
	return v, ok
}
