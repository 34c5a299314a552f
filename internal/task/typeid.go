// Package task implements the task model and identity layer: the
// polymorphic type registry, the field/value model shared by both
// serialization modes, and the content-addressed id every task carries.
package task

import "fmt"

// TypeID is the polymorphic discriminator carried by every task and
// every nested polymorphic value: a (namespace, name) pair resolved
// through the process-wide registry instead of a language-level class
// reference.
type TypeID struct {
	Namespace string
	Name      string
}

func (t TypeID) String() string {
	return fmt.Sprintf("%s.%s", t.Namespace, t.Name)
}

// Namespace returns a TypeID builder bound to ns, so a package that
// declares many task types can share one namespace constant instead of
// repeating it at every Register call - the closest Go equivalent to
// the original's auto_namespace() convenience without relying on
// reflection over caller package paths.
func Namespace(ns string) func(name string) TypeID {
	return func(name string) TypeID {
		return TypeID{Namespace: ns, Name: name}
	}
}
