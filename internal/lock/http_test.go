package lock

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientAcquireStatusMapping(t *testing.T) {
	cases := []struct {
		name       string
		statusCode int
		body       acquireResponse
		want       Status
	}{
		{"acquired", http.StatusOK, acquireResponse{Status: "acquired"}, StatusAcquired},
		{"already completed", http.StatusOK, acquireResponse{Status: "already_completed"}, StatusAlreadyCompleted},
		{"locked", http.StatusLocked, acquireResponse{}, StatusHeldByOther},
		{"too many requests", http.StatusTooManyRequests, acquireResponse{}, StatusWorkspaceCapReached},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/api/v1/locks/t1/acquire", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tc.statusCode)
				_ = json.NewEncoder(w).Encode(tc.body)
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, time.Second, "", "", "")
			res, err := c.Acquire(t.Context(), "t1", "owner-a", time.Minute, true)
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.Status)
		})
	}
}

func TestHTTPClientRenewConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, "", "", "")
	ok, err := c.Renew(t.Context(), "t1", "owner-a", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPClientReleaseSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(releaseResponse{Released: true})
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second, "api-key", "", "ws-1")
	ok, err := c.Release(t.Context(), "t1", "owner-a", true)
	require.NoError(t, err)
	assert.True(t, ok)
}
