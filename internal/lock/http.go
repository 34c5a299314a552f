package lock

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// HTTPClient implements GlobalConcurrencyLock against the registry
// service's lock endpoints, grounded on the original's
// RegistryGlobalConcurrencyLock (stardag/registry/_lock.py), adapted
// from httpx's async client to resty's synchronous one (the scheduler
// already runs each task's lock interaction on its own goroutine, so a
// blocking HTTP client is no less concurrent in practice).
type HTTPClient struct {
	client    *resty.Client
	workspace string
}

// NewHTTPClient builds an HTTPClient. apiKey and bearerToken are
// mutually exclusive, matching spec.md §6's auth precedence
// (api_key, then access_token).
func NewHTTPClient(baseURL string, timeout time.Duration, apiKey, bearerToken, workspaceID string) *HTTPClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout)
	switch {
	case apiKey != "":
		c.SetHeader("X-API-Key", apiKey)
	case bearerToken != "":
		c.SetAuthToken(bearerToken)
	}
	return &HTTPClient{client: c, workspace: workspaceID}
}

func (h *HTTPClient) params() map[string]string {
	if h.workspace == "" {
		return nil
	}
	return map[string]string{"workspace_id": h.workspace}
}

type acquireRequest struct {
	OwnerID         string `json:"owner_id"`
	TTLSeconds      int    `json:"ttl_seconds"`
	CheckCompletion bool   `json:"check_task_completion"`
}

type acquireResponse struct {
	Status       string `json:"status"`
	Acquired     bool   `json:"acquired"`
	ErrorMessage string `json:"error_message"`
}

func (h *HTTPClient) Acquire(ctx context.Context, taskID, ownerID string, ttl time.Duration, checkCompletion bool) (AcquireResult, error) {
	var out acquireResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(h.params()).
		SetBody(acquireRequest{
			OwnerID:         ownerID,
			TTLSeconds:      int(ttl.Seconds()),
			CheckCompletion: checkCompletion,
		}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/v1/locks/%s/acquire", taskID))
	if err != nil {
		return AcquireResult{Status: StatusError, ErrMessage: err.Error()}, nil
	}

	switch resp.StatusCode() {
	case http.StatusLocked: // 423
		return AcquireResult{Status: StatusHeldByOther, ErrMessage: out.ErrorMessage}, nil
	case http.StatusTooManyRequests: // 429
		return AcquireResult{Status: StatusWorkspaceCapReached, ErrMessage: out.ErrorMessage}, nil
	}
	if resp.IsError() {
		return AcquireResult{Status: StatusError, ErrMessage: fmt.Sprintf("acquire lock for %s: %s", taskID, resp.Status())}, nil
	}

	return AcquireResult{Status: parseStatus(out.Status), ErrMessage: out.ErrorMessage}, nil
}

func parseStatus(s string) Status {
	switch s {
	case "acquired":
		return StatusAcquired
	case "already_completed":
		return StatusAlreadyCompleted
	case "held_by_other":
		return StatusHeldByOther
	case "workspace_cap_reached", "concurrency_limit_reached":
		return StatusWorkspaceCapReached
	default:
		return StatusError
	}
}

type renewRequest struct {
	OwnerID    string `json:"owner_id"`
	TTLSeconds int    `json:"ttl_seconds"`
}

type renewResponse struct {
	Renewed bool `json:"renewed"`
}

func (h *HTTPClient) Renew(ctx context.Context, taskID, ownerID string, ttl time.Duration) (bool, error) {
	var out renewResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(h.params()).
		SetBody(renewRequest{OwnerID: ownerID, TTLSeconds: int(ttl.Seconds())}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/v1/locks/%s/renew", taskID))
	if err != nil {
		return false, fmt.Errorf("stardag: renew lock for %s: %w", taskID, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("stardag: renew lock for %s: %s", taskID, resp.Status())
	}
	return out.Renewed, nil
}

type releaseRequest struct {
	OwnerID       string `json:"owner_id"`
	TaskCompleted bool   `json:"task_completed"`
}

type releaseResponse struct {
	Released bool `json:"released"`
}

func (h *HTTPClient) Release(ctx context.Context, taskID, ownerID string, taskCompleted bool) (bool, error) {
	var out releaseResponse
	resp, err := h.client.R().
		SetContext(ctx).
		SetQueryParams(h.params()).
		SetBody(releaseRequest{OwnerID: ownerID, TaskCompleted: taskCompleted}).
		SetResult(&out).
		Post(fmt.Sprintf("/api/v1/locks/%s/release", taskID))
	if err != nil {
		return false, fmt.Errorf("stardag: release lock for %s: %w", taskID, err)
	}
	if resp.StatusCode() == http.StatusConflict {
		return false, nil
	}
	if resp.IsError() {
		return false, fmt.Errorf("stardag: release lock for %s: %s", taskID, resp.Status())
	}
	return out.Released, nil
}
