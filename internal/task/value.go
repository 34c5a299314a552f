package task

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
)

// serMode selects which of the two serialization modes a Value is
// being rendered for. Every Value kind encodes identically in both
// modes except the nested-task and declared-set kinds, which truncate
// or reorder only in hash mode.
type serMode int

const (
	modeTransport serMode = iota
	modeHash
)

// Value is a task field's value: a primitive, an ordered list, a
// string-keyed map, a declared-unordered set, a nested Task, or a
// caller-defined model with its own hash-mode rules (see Custom).
type Value interface {
	encode(m serMode) (any, error)
}

// --- primitives ---

type primValue struct{ v any }

func (p primValue) encode(serMode) (any, error) { return p.v, nil }

// Int wraps an integer field value.
func Int(v int64) Value { return primValue{v} }

// Float wraps a floating point field value.
func Float(v float64) Value { return primValue{v} }

// Str wraps a string field value.
func Str(v string) Value { return primValue{v} }

// Bool wraps a boolean field value.
func Bool(v bool) Value { return primValue{v} }

// Null wraps an explicit JSON null field value.
func Null() Value { return primValue{nil} }

// Bytes wraps a byte slice, base64-encoding it the same way in both
// serialization modes.
func Bytes(b []byte) Value {
	if b == nil {
		return primValue{nil}
	}
	return primValue{base64.StdEncoding.EncodeToString(b)}
}

// --- list ---

type listValue struct{ items []Value }

// List builds an ordered field value; order participates in the hash.
func List(items ...Value) Value { return listValue{items} }

func (l listValue) encode(m serMode) (any, error) {
	out := make([]any, len(l.items))
	for i, it := range l.items {
		v, err := it.encode(m)
		if err != nil {
			return nil, fmt.Errorf("list[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// --- map ---

type mapValue struct{ m map[string]Value }

// Map builds a string-keyed field value.
func Map(m map[string]Value) Value { return mapValue{m} }

func (d mapValue) encode(m serMode) (any, error) {
	out := make(map[string]any, len(d.m))
	for k, v := range d.m {
		enc, err := v.encode(m)
		if err != nil {
			return nil, fmt.Errorf("map[%q]: %w", k, err)
		}
		out[k] = enc
	}
	return out, nil
}

// --- declared-unordered set ---

type setValue struct {
	items   []Value
	sortKey func(Value) string
}

// Set builds a declared-unordered-set field value: its items encode
// identically in transport mode (preserving caller order) but are
// sorted by sortKey before hashing, so two sets containing the same
// elements in different orders hash identically. Pass a nil sortKey to
// sort by each element's own canonical hash-mode JSON bytes.
func Set(sortKey func(Value) string, items ...Value) Value {
	return setValue{items: items, sortKey: sortKey}
}

func (s setValue) encode(m serMode) (any, error) {
	encoded := make([]any, len(s.items))
	for i, it := range s.items {
		v, err := it.encode(m)
		if err != nil {
			return nil, fmt.Errorf("set[%d]: %w", i, err)
		}
		encoded[i] = v
	}
	if m != modeHash {
		return encoded, nil
	}

	type keyed struct {
		key string
		val any
	}
	ks := make([]keyed, len(encoded))
	for i, v := range encoded {
		var k string
		if s.sortKey != nil {
			k = s.sortKey(s.items[i])
		} else {
			b, err := hashSafeJSON(v)
			if err != nil {
				return nil, err
			}
			k = string(b)
		}
		ks[i] = keyed{k, v}
	}
	sort.SliceStable(ks, func(i, j int) bool { return ks[i].key < ks[j].key })
	out := make([]any, len(ks))
	for i, kv := range ks {
		out[i] = kv.val
	}
	return out, nil
}

// --- nested task ---

type taskFieldValue struct{ t Task }

// TaskValue wraps a nested task as a field value. In hash mode it
// truncates to {"id": <the nested task's id>}, the bottom-up
// truncation rule that lets a parent's id stay stable across
// unrelated changes to a dependency's non-identity-affecting fields.
// In transport mode it encodes the full nested payload, discriminators
// included, so it round-trips.
func TaskValue(t Task) Value { return taskFieldValue{t} }

func (tv taskFieldValue) encode(m serMode) (any, error) {
	if tv.t == nil {
		return nil, nil
	}
	if m == modeHash {
		return map[string]any{"id": tv.t.ID().String()}, nil
	}
	return transportJSONable(tv.t)
}

// --- custom domain model ---

// HashValue lets a caller-defined model participate as a task field
// with its own rules for both serialization modes, mirroring how
// nested tasks truncate in hash mode: implementations branch on hash
// to drop or redact fields that should not affect identity.
type HashValue interface {
	EncodeValue(hash bool) (any, error)
}

type customValue struct{ v HashValue }

// Custom wraps a HashValue as a field value.
func Custom(v HashValue) Value { return customValue{v} }

func (c customValue) encode(m serMode) (any, error) { return c.v.EncodeValue(m == modeHash) }

// hashSafeJSON canonicalizes v the way the original's
// _hash_safe_json_dumps does: sorted object keys (encoding/json
// already sorts map[string]any keys), minimal separators (the default),
// and no HTML-escaping.
func hashSafeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func deepEqualHash(a, b any) bool {
	ab, errA := hashSafeJSON(a)
	bb, errB := hashSafeJSON(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
