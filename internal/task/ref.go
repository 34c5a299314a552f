package task

import (
	"fmt"

	"github.com/google/uuid"
)

// Ref is a lightweight, non-polymorphic projection of a task: just
// enough to log and display without printing raw UUIDs everywhere.
// Mirrors the original's TaskRef (stardag/_task.py).
type Ref struct {
	TypeID  TypeID
	Version string
	ID      uuid.UUID
}

// RefOf projects t into a Ref.
func RefOf(t Task) Ref {
	return Ref{TypeID: t.TypeID(), Version: t.Version(), ID: t.ID()}
}

// Slug renders a short, human-readable identifier:
// "{name}-v{version}-{first 8 hex chars of id}".
func (r Ref) Slug() string {
	id := r.ID.String()
	short := id
	if len(id) > 8 {
		short = id[:8]
	}
	return fmt.Sprintf("%s-v%s-%s", r.TypeID.Name, r.Version, short)
}

func (r Ref) String() string { return r.Slug() }
