package task

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/registryasset"
	"github.com/stardag-dev/stardag-go/internal/target"
)

// Base is embedded by every concrete task type to provide the
// mechanical parts of the Task interface: cached id computation and
// sane defaults for Requires, Output, and RegistryAssets.
//
// Go has no virtual dispatch through struct embedding, so Base cannot
// call the embedding type's TypeID/Version/Fields/Output on its own -
// ComputeID and CompleteViaOutput take the embedding type as an
// explicit self parameter. The idiom at the call site is:
//
//	func (t *MyTask) ID() uuid.UUID                         { return t.ComputeID(t) }
//	func (t *MyTask) Complete(ctx context.Context) (bool, error) { return t.CompleteViaOutput(ctx, t) }
//
// which looks redundant but is the standard way to recover "self" in
// Go when a base type needs the derived type's full method set.
type Base struct {
	idOnce sync.Once
	id     uuid.UUID
	idErr  error
}

// ComputeID computes and caches self's id. self must be the concrete
// task value embedding this Base.
func (b *Base) ComputeID(self Task) uuid.UUID {
	b.idOnce.Do(func() {
		b.id, b.idErr = computeID(self)
	})
	if b.idErr != nil {
		// A task whose fields cannot be hashed (a Custom value whose
		// EncodeValue errors, a cycle a caller built by hand outside
		// the scheduler's cycle check) has no sensible id to return.
		// Every other part of the engine treats ID() as infallible, so
		// the only honest options are panic or a sentinel nil uuid;
		// panic surfaces the error immediately at the call site that
		// misused the API instead of silently propagating uuid.Nil
		// into a cache key.
		panic(b.idErr)
	}
	return b.id
}

// Requires is the default "no static dependencies" implementation.
func (b *Base) Requires() TaskStruct { return nil }

// Output is the default "no persisted artifact" implementation.
func (b *Base) Output() target.Target { return target.None{} }

// CompleteViaOutput reports whether self.Output() already exists. Most
// concrete task types' Complete method is a one-line call to this.
func (b *Base) CompleteViaOutput(ctx context.Context, self Task) (bool, error) {
	return self.Output().Exists(ctx)
}

// RegistryAssets is the default "nothing to upload" implementation.
func (b *Base) RegistryAssets(context.Context) ([]registryasset.Asset, error) { return nil, nil }
