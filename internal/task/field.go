package task

// Field declares one of a task's parameters.
type Field struct {
	// Name is the field's key in both serialization modes.
	Name string
	// Value is the field's current value.
	Value Value
	// HashExclude, when true, drops this field from hash-mode output
	// entirely: it is still carried in transport mode (so it
	// round-trips) but never participates in the task's id. Use this
	// for fields that affect how a task runs but not what it produces
	// (concurrency hints, human-facing descriptions, retry policy).
	HashExclude bool
	// CompatDefault, when non-nil, causes this field to be omitted
	// from hash-mode output whenever Value's hash-mode encoding deep-
	// equals CompatDefault's. This lets a new field be added to an
	// existing task type without changing the id of every task that
	// was computed before the field existed, as long as the default
	// preserves old behavior.
	CompatDefault Value
}
