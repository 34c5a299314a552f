package task

import (
	"fmt"

	"github.com/google/uuid"
)

// DefaultUUIDNamespace is the fixed UUID5 namespace every task id
// derives from by default. Never change this in a system with any
// existing cached task output: doing so changes every task's id and
// therefore invalidates every completion check and lock keyed on it.
// Mirrors the original's _DEFAULT_TASK_UUID5_NAMESPACE
// (stardag/_core/task_id.py).
var DefaultUUIDNamespace = uuid.MustParse("9ca26b27-f7ee-4044-8b3c-e335dc5778dc")

// UUIDNamespace is the namespace computeID uses. It defaults to
// DefaultUUIDNamespace; tests that want isolated ids (so a throwaway
// task type registered in one test can't collide with another test's
// ids of the same shape) may swap it for the duration of the test.
var UUIDNamespace = DefaultUUIDNamespace

// computeID derives t's content-addressed id: canonicalize t's
// hash-mode representation to bytes, then UUID5 those bytes under
// UUIDNamespace. uuid.NewSHA1 is Go's name for the UUID5 construction
// (SHA-1 of namespace||name), matching Python's uuid.uuid5 exactly.
func computeID(t Task) (uuid.UUID, error) {
	jsonable, err := hashJSONable(t)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stardag: computing id for task %s: %w", t.TypeID(), err)
	}
	canonical, err := hashSafeJSON(jsonable)
	if err != nil {
		return uuid.Nil, fmt.Errorf("stardag: computing id for task %s: %w", t.TypeID(), err)
	}
	return uuid.NewSHA1(UUIDNamespace, canonical), nil
}

// hashJSONable builds the hash-mode JSON-able representation of t: the
// type discriminator, version, and every declared field not excluded
// or equal to its compat default.
func hashJSONable(t Task) (map[string]any, error) {
	typeID := t.TypeID()
	out := map[string]any{
		"__namespace": typeID.Namespace,
		"__name":      typeID.Name,
		"version":     t.Version(),
	}
	for _, f := range t.Fields() {
		if f.HashExclude {
			continue
		}
		encoded, err := f.Value.encode(modeHash)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if f.CompatDefault != nil {
			def, err := f.CompatDefault.encode(modeHash)
			if err != nil {
				return nil, fmt.Errorf("field %q compat default: %w", f.Name, err)
			}
			if deepEqualHash(encoded, def) {
				continue
			}
		}
		out[f.Name] = encoded
	}
	return out, nil
}
