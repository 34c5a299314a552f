package task

import (
	"encoding/json"
	"sync"
)

// Constructor builds a concrete Task from its transport-mode payload:
// the declared version string plus the raw JSON of each declared
// field, keyed by field name. Implementations typically unmarshal each
// entry with the task's own field constructors (task.Int, task.List,
// task.TaskValue, ...).
type Constructor func(version string, fields map[string]json.RawMessage) (Task, error)

type typeRegistry struct {
	mu    sync.RWMutex
	ctors map[TypeID]Constructor
}

var defaultRegistry = &typeRegistry{ctors: map[TypeID]Constructor{}}

// Register binds typeID to ctor so the transport decoder can construct
// instances of it. Call it once per concrete task type - typically
// from a package-level var or an init func - mirroring the class
// registration the original performs at import time
// (stardag/polymorphic.py), since Go has no equivalent import-time
// side effect to hook into.
//
// Register panics on a duplicate typeID: like the original, this is a
// fatal error at class-definition time, not a condition calling code
// should ever need to recover from.
func Register(typeID TypeID, ctor Constructor) {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	if _, ok := defaultRegistry.ctors[typeID]; ok {
		panic(&DuplicateTypeError{TypeID: typeID})
	}
	defaultRegistry.ctors[typeID] = ctor
}

// resolve looks up the constructor for typeID, returning an
// *UnknownTypeError (not a panic) since this runs at deserialization
// time against caller-supplied data.
func resolve(typeID TypeID) (Constructor, error) {
	defaultRegistry.mu.RLock()
	defer defaultRegistry.mu.RUnlock()
	ctor, ok := defaultRegistry.ctors[typeID]
	if !ok {
		return nil, &UnknownTypeError{TypeID: typeID}
	}
	return ctor, nil
}

// resetRegistryForTest clears the process-wide registry. Exported only
// to _test.go files in this package via the lowercase name; it exists
// so identity/registry tests can register throwaway types without
// leaking into other tests in the same binary.
func resetRegistryForTest() {
	defaultRegistry.mu.Lock()
	defer defaultRegistry.mu.Unlock()
	defaultRegistry.ctors = map[TypeID]Constructor{}
}
