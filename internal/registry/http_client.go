package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/user"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/stardag-dev/stardag-go/internal/backoff"
	"github.com/stardag-dev/stardag-go/internal/gitinfo"
	"github.com/stardag-dev/stardag-go/internal/registryasset"
	"github.com/stardag-dev/stardag-go/internal/task"
)

// HTTPClient talks to the stardag-api-style registry service,
// grounded on the original's APIRegistry (stardag/build/api_registry.py):
// one HTTP call per lifecycle transition, authenticated by either an
// API key or a bearer token, fire-and-forget by default.
//
// Individual event RPCs are retried with a bounded backoff and, on
// exhaustion, logged and swallowed - a registry outage must not fail a
// build (spec.md §4.4). Strict, which defaults to false, upgrades
// RegisterTask and UploadAssets to return the error instead, matching
// the spec's carve-out that those two calls "may be configured to be
// strict".
type HTTPClient struct {
	client      *resty.Client
	logger      *slog.Logger
	workspace   string
	user        string
	commit      func() string
	Strict      bool
	retryPolicy backoff.RetryPolicy
}

// HTTPClientOption configures an HTTPClient at construction time.
type HTTPClientOption func(*HTTPClient)

// WithStrict makes RegisterTask/UploadAssets return errors instead of
// swallowing them after retries are exhausted.
func WithStrict(strict bool) HTTPClientOption {
	return func(c *HTTPClient) { c.Strict = strict }
}

// WithCommitHashFunc overrides how the client resolves the commit hash
// attached to register_task calls (defaults to internal/gitinfo).
func WithCommitHashFunc(fn func() string) HTTPClientOption {
	return func(c *HTTPClient) { c.commit = fn }
}

// WithLogger attaches a logger for swallowed fire-and-forget failures.
func WithLogger(logger *slog.Logger) HTTPClientOption {
	return func(c *HTTPClient) { c.logger = logger }
}

// WithRetryPolicy overrides the default bounded-retry policy for event
// RPCs (up to 5 retries, constant 200ms, matching spec.md §4.3's "bounded
// exponential backoff, ~5 attempts" language applied here to registry
// delivery rather than lock RPCs).
func WithRetryPolicy(p backoff.RetryPolicy) HTTPClientOption {
	return func(c *HTTPClient) { c.retryPolicy = p }
}

// NewHTTPClient builds an HTTPClient. apiKey and bearerToken are
// mutually exclusive; workspaceID is attached to every request as a
// query parameter when non-empty.
func NewHTTPClient(baseURL string, timeout time.Duration, apiKey, bearerToken, workspaceID string, opts ...HTTPClientOption) *HTTPClient {
	rc := resty.New().SetBaseURL(baseURL).SetTimeout(timeout)
	switch {
	case apiKey != "":
		rc.SetHeader("X-API-Key", apiKey)
	case bearerToken != "":
		rc.SetAuthToken(bearerToken)
	}

	c := &HTTPClient{
		client:      rc,
		logger:      slog.Default(),
		workspace:   workspaceID,
		user:        currentUser(),
		commit:      gitinfo.Func("."),
		retryPolicy: backoff.NewConstantBackoffPolicy(200*time.Millisecond, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// deliver retries fn with c.retryPolicy, logging and swallowing the
// final error unless strict is true.
func (c *HTTPClient) deliver(ctx context.Context, op string, strict bool, fn func() error) error {
	retrier := backoff.NewRetrier(c.retryPolicy)
	var lastErr error
	for {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if waitErr := retrier.Next(ctx, lastErr); waitErr != nil {
			break
		}
	}
	if strict {
		return fmt.Errorf("stardag/registry: %s: %w", op, lastErr)
	}
	c.logger.Warn("registry delivery failed, continuing", "op", op, "error", lastErr)
	return nil
}

func (c *HTTPClient) params() map[string]string {
	if c.workspace == "" {
		return nil
	}
	return map[string]string{"workspace_id": c.workspace}
}

func (c *HTTPClient) post(ctx context.Context, path string, body any) error {
	resp, err := c.client.R().SetContext(ctx).SetQueryParams(c.params()).SetBody(body).Post(path)
	if err != nil {
		return err
	}
	if resp.IsError() {
		return fmt.Errorf("%s: %s", path, resp.Status())
	}
	return nil
}

type buildRequest struct {
	RootTaskIDs []uuid.UUID `json:"root_task_ids"`
	Description string      `json:"description,omitempty"`
}

type buildResponse struct {
	BuildID string `json:"build_id"`
}

func (c *HTTPClient) StartBuild(ctx context.Context, roots []task.Task, description string) (string, error) {
	ids := make([]uuid.UUID, len(roots))
	for i, t := range roots {
		ids[i] = t.ID()
	}
	var out buildResponse
	err := c.deliver(ctx, "start_build", false, func() error {
		resp, err := c.client.R().SetContext(ctx).SetQueryParams(c.params()).
			SetBody(buildRequest{RootTaskIDs: ids, Description: description}).
			SetResult(&out).
			Post("/api/v1/builds")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("start_build: %s", resp.Status())
		}
		return nil
	})
	return out.BuildID, err
}

func (c *HTTPClient) CompleteBuild(ctx context.Context, buildID string) error {
	if buildID == "" {
		return nil
	}
	return c.deliver(ctx, "complete_build", false, func() error {
		return c.post(ctx, fmt.Sprintf("/api/v1/builds/%s/complete", buildID), nil)
	})
}

func (c *HTTPClient) FailBuild(ctx context.Context, buildID string, errMessage string) error {
	if buildID == "" {
		return nil
	}
	return c.deliver(ctx, "fail_build", false, func() error {
		return c.post(ctx, fmt.Sprintf("/api/v1/builds/%s/fail", buildID), map[string]string{"error_message": errMessage})
	})
}

func (c *HTTPClient) CancelBuild(ctx context.Context, buildID string) error {
	if buildID == "" {
		return nil
	}
	return c.deliver(ctx, "cancel_build", false, func() error {
		return c.post(ctx, fmt.Sprintf("/api/v1/builds/%s/cancel", buildID), nil)
	})
}

func (c *HTTPClient) ExitEarlyBuild(ctx context.Context, buildID string) error {
	if buildID == "" {
		return nil
	}
	return c.deliver(ctx, "exit_early_build", false, func() error {
		return c.post(ctx, fmt.Sprintf("/api/v1/builds/%s/exit_early", buildID), nil)
	})
}

type registerTaskRequest struct {
	TaskID        uuid.UUID       `json:"task_id"`
	Namespace     string          `json:"namespace"`
	Name          string          `json:"name"`
	Version       string          `json:"version"`
	TaskPayload   json.RawMessage `json:"task_payload"`
	User          string          `json:"user"`
	CommitHash    string          `json:"commit_hash"`
	DependencyIDs []uuid.UUID     `json:"dependency_ids"`
}

func (c *HTTPClient) RegisterTask(ctx context.Context, buildID string, t task.Task, depIDs []uuid.UUID) error {
	payload, err := task.MarshalTransport(t)
	if err != nil {
		return fmt.Errorf("stardag/registry: encoding task %s for registration: %w", t.ID(), err)
	}
	req := registerTaskRequest{
		TaskID:        t.ID(),
		Namespace:     t.TypeID().Namespace,
		Name:          t.TypeID().Name,
		Version:       t.Version(),
		TaskPayload:   payload,
		User:          c.user,
		CommitHash:    c.commit(),
		DependencyIDs: depIDs,
	}
	return c.deliver(ctx, "register_task", c.Strict, func() error {
		return c.post(ctx, fmt.Sprintf("/api/v1/builds/%s/tasks", buildID), req)
	})
}

func (c *HTTPClient) taskEvent(ctx context.Context, buildID, suffix string, t task.Task, extra map[string]string) error {
	path := fmt.Sprintf("/api/v1/builds/%s/tasks/%s/%s", buildID, t.ID(), suffix)
	return c.deliver(ctx, suffix, false, func() error {
		return c.post(ctx, path, extra)
	})
}

func (c *HTTPClient) StartTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "start", t, nil)
}

func (c *HTTPClient) ReferenceTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "reference", t, nil)
}

func (c *HTTPClient) SuspendTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "suspend", t, nil)
}

func (c *HTTPClient) ResumeTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "resume", t, nil)
}

func (c *HTTPClient) WaitingForLock(ctx context.Context, buildID string, t task.Task, reason string) error {
	return c.taskEvent(ctx, buildID, "waiting_for_lock", t, map[string]string{"reason": reason})
}

func (c *HTTPClient) CompleteTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "complete", t, nil)
}

func (c *HTTPClient) FailTask(ctx context.Context, buildID string, t task.Task, errMessage string) error {
	return c.taskEvent(ctx, buildID, "fail", t, map[string]string{"error_message": errMessage})
}

func (c *HTTPClient) SkipTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "skip", t, nil)
}

func (c *HTTPClient) CancelTask(ctx context.Context, buildID string, t task.Task) error {
	return c.taskEvent(ctx, buildID, "cancel", t, nil)
}

type assetRequest struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	Body string `json:"body"`
}

func (c *HTTPClient) UploadAssets(ctx context.Context, buildID string, t task.Task, assets []registryasset.Asset) error {
	for _, a := range assets {
		a := a
		path := fmt.Sprintf("/api/v1/builds/%s/tasks/%s/assets", buildID, t.ID())
		req := assetRequest{Kind: string(a.Kind), Name: a.Name, Body: string(a.Content)}
		if err := c.deliver(ctx, "upload_asset", c.Strict, func() error {
			return c.post(ctx, path, req)
		}); err != nil {
			return err
		}
	}
	return nil
}

var _ Client = (*HTTPClient)(nil)
