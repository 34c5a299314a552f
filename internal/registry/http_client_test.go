package registry_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stardag-dev/stardag-go/internal/backoff"
	"github.com/stardag-dev/stardag-go/internal/registry"
	"github.com/stardag-dev/stardag-go/internal/registry/registrytest"
	"github.com/stardag-dev/stardag-go/internal/registryasset"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// fastRetry keeps the swallow-after-exhaustion tests quick: 3 retries
// at 1ms instead of the client's production default (5 retries at
// 200ms).
func fastRetry() backoff.RetryPolicy {
	return &backoff.ConstantBackoffPolicy{Interval: time.Millisecond, MaxRetries: 3}
}

var testNamespace = task.Namespace("stardag.registrytest")

type fixtureTask struct {
	task.Base
	N int64
}

func (t *fixtureTask) TypeID() task.TypeID  { return testNamespace("fixture") }
func (t *fixtureTask) Version() string      { return "1" }
func (t *fixtureTask) Fields() []task.Field {
	return []task.Field{{Name: "n", Value: task.Int(t.N)}}
}
func (t *fixtureTask) ID() uuid.UUID { return t.ComputeID(t) }
func (t *fixtureTask) Complete(ctx context.Context) (bool, error) {
	return t.CompleteViaOutput(ctx, t)
}
func (t *fixtureTask) Run(context.Context, task.Generator) error { return nil }

func init() {
	task.Register(testNamespace("fixture"), func(version string, fields map[string]json.RawMessage) (task.Task, error) {
		var n int64
		if err := task.DecodeField(testNamespace("fixture"), fields, "n", &n); err != nil {
			return nil, err
		}
		return &fixtureTask{N: n}, nil
	})
}

func newClient(t *testing.T, srv *registrytest.Server, opts ...registry.HTTPClientOption) *registry.HTTPClient {
	t.Helper()
	opts = append([]registry.HTTPClientOption{registry.WithRetryPolicy(fastRetry())}, opts...)
	return registry.NewHTTPClient(srv.URL, 5*time.Second, "", "", "", opts...)
}

func TestRegisterTaskThenLifecycleEvents(t *testing.T) {
	srv := registrytest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	tk := &fixtureTask{N: 1}
	buildID, err := c.StartBuild(ctx, []task.Task{tk}, "test build")
	require.NoError(t, err)
	require.NotEmpty(t, buildID)

	require.NoError(t, c.RegisterTask(ctx, buildID, tk, nil))
	require.NoError(t, c.StartTask(ctx, buildID, tk))
	require.NoError(t, c.CompleteTask(ctx, buildID, tk))
	require.NoError(t, c.CompleteBuild(ctx, buildID))

	kinds := srv.EventKinds()
	assert.Equal(t, []string{
		"BUILD_STARTED",
		"TASK_PENDING",
		"TASK_STARTED",
		"TASK_COMPLETED",
		"BUILD_COMPLETED",
	}, kinds)
}

func TestTaskEventBeforeRegisterFails(t *testing.T) {
	srv := registrytest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	tk := &fixtureTask{N: 2}
	buildID, err := c.StartBuild(ctx, []task.Task{tk}, "")
	require.NoError(t, err)

	// StartTask before RegisterTask must fail (409 from the double);
	// the client's default fire-and-forget mode swallows it.
	err = c.StartTask(ctx, buildID, tk)
	assert.NoError(t, err, "non-strict calls swallow delivery failures")
}

func TestUploadAssetIdempotentReplace(t *testing.T) {
	srv := registrytest.New()
	defer srv.Close()
	c := newClient(t, srv)
	ctx := context.Background()

	tk := &fixtureTask{N: 3}
	buildID, err := c.StartBuild(ctx, []task.Task{tk}, "")
	require.NoError(t, err)
	require.NoError(t, c.RegisterTask(ctx, buildID, tk, nil))

	assets1 := []registryasset.Asset{registryasset.Markdown("report", "v1")}
	require.NoError(t, c.UploadAssets(ctx, buildID, tk, assets1))
	body, ok := srv.AssetBody(tk.ID(), "markdown", "report")
	require.True(t, ok)
	assert.Equal(t, "v1", body)

	assets2 := []registryasset.Asset{registryasset.Markdown("report", "v2")}
	require.NoError(t, c.UploadAssets(ctx, buildID, tk, assets2))
	body, ok = srv.AssetBody(tk.ID(), "markdown", "report")
	require.True(t, ok)
	assert.Equal(t, "v2", body, "re-uploading the same (task, kind, name) must replace, not duplicate")
}

func TestRegisterTaskStrictSurfacesError(t *testing.T) {
	// An unreachable server, with Strict=true, must surface the
	// error instead of swallowing it.
	srv := registrytest.New()
	srv.Close() // closed server: every request fails immediately

	c := registry.NewHTTPClient(srv.URL, 200*time.Millisecond, "", "", "", registry.WithStrict(true), registry.WithRetryPolicy(fastRetry()))
	tk := &fixtureTask{N: 4}
	err := c.RegisterTask(context.Background(), "build-1", tk, nil)
	assert.Error(t, err)
}

func TestNoOpRegistryIsSideEffectFree(t *testing.T) {
	var r registry.Client = registry.NoOp{}
	tk := &fixtureTask{N: 5}
	ctx := context.Background()

	buildID, err := r.StartBuild(ctx, []task.Task{tk}, "")
	require.NoError(t, err)
	assert.Empty(t, buildID)
	assert.NoError(t, r.RegisterTask(ctx, buildID, tk, nil))
	assert.NoError(t, r.StartTask(ctx, buildID, tk))
	assert.NoError(t, r.CompleteTask(ctx, buildID, tk))
	assert.NoError(t, r.UploadAssets(ctx, buildID, tk, []registryasset.Asset{registryasset.JSON("x", []byte("{}"))}))
}
