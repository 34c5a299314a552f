package task

import (
	"errors"
	"fmt"
	"strings"
)

// ErrAlreadyYielded is returned by Generator.Yield when a task body
// calls it more than once per Run invocation. The scheduler only
// supports a narrow, one-level yield+resume per task, not general
// coroutine semantics.
var ErrAlreadyYielded = errors.New("stardag: task already yielded dynamic dependencies for this run")

// UnknownTypeError is returned when a transport payload names a
// TypeID that was never registered. Unlike a duplicate registration
// (which is fatal at startup), this is a runtime, recoverable error:
// the caller may be missing an import, not misusing the API.
type UnknownTypeError struct {
	TypeID TypeID
}

func (e *UnknownTypeError) Error() string {
	return fmt.Sprintf("stardag: unknown task type %s (forgot to import the package that registers it?)", e.TypeID)
}

// DuplicateTypeError is raised (as a panic) when Register is called
// twice for the same TypeID. This mirrors the original's fatal
// class-definition-time duplicate check: it is a programming error,
// not a runtime condition a caller should recover from.
type DuplicateTypeError struct {
	TypeID TypeID
}

func (e *DuplicateTypeError) Error() string {
	return fmt.Sprintf("stardag: task type %s already registered", e.TypeID)
}

// MissingFieldError reports a required field absent from a transport
// payload being decoded into a concrete task.
type MissingFieldError struct {
	TypeID TypeID
	Field  string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("stardag: task %s missing required field %q", e.TypeID, e.Field)
}

// CycleError reports a dependency cycle discovered while flattening a
// task's static or dynamic requirements. Path lists the type names
// along the cycle, outermost task first.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("stardag: dependency cycle: %s", strings.Join(e.Path, " -> "))
}
