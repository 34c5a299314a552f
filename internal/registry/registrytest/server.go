// Package registrytest provides an in-process chi-based double for the
// registry HTTP service, used to exercise internal/registry.HTTPClient
// without a real stardag-api backend. It enforces the one behavioral
// contract spec.md §4.4 calls out explicitly: asset upload is
// idempotent on (task id, kind, name).
package registrytest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type assetKey struct {
	taskID uuid.UUID
	kind   string
	name   string
}

// Server records every call it receives so tests can assert on
// sequencing (e.g. register_task before any lifecycle event).
type Server struct {
	*httptest.Server

	mu        sync.Mutex
	Builds    map[string]bool // build id -> exists
	Tasks     map[uuid.UUID]registeredTask
	Events    []Event
	Assets    map[assetKey]string
	nextBuild int
}

type registeredTask struct {
	DependencyIDs []uuid.UUID
	CommitHash    string
	User          string
}

// Event is one recorded lifecycle call, in arrival order.
type Event struct {
	BuildID string
	TaskID  uuid.UUID // zero value for build-level events
	Kind    string
}

// New starts a Server. Callers should defer Close().
func New() *Server {
	s := &Server{
		Builds: map[string]bool{},
		Tasks:  map[uuid.UUID]registeredTask{},
		Assets: map[assetKey]string{},
	}
	r := chi.NewRouter()
	r.Post("/api/v1/builds", s.handleStartBuild)
	r.Post("/api/v1/builds/{build}/complete", s.handleBuildEvent("BUILD_COMPLETED"))
	r.Post("/api/v1/builds/{build}/fail", s.handleBuildEvent("BUILD_FAILED"))
	r.Post("/api/v1/builds/{build}/cancel", s.handleBuildEvent("BUILD_CANCELLED"))
	r.Post("/api/v1/builds/{build}/exit_early", s.handleBuildEvent("BUILD_EXIT_EARLY"))
	r.Post("/api/v1/builds/{build}/tasks", s.handleRegisterTask)
	r.Post("/api/v1/builds/{build}/tasks/{task}/{action}", s.handleTaskEvent)
	r.Post("/api/v1/builds/{build}/tasks/{task}/assets", s.handleUploadAsset)
	s.Server = httptest.NewServer(r)
	return s
}

func (s *Server) handleStartBuild(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RootTaskIDs []uuid.UUID `json:"root_task_ids"`
		Description string      `json:"description"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	s.nextBuild++
	id := uuid.NewSHA1(uuid.NameSpaceOID, []byte{byte(s.nextBuild)}).String()
	s.Builds[id] = true
	s.Events = append(s.Events, Event{BuildID: id, Kind: "BUILD_STARTED"})
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]string{"build_id": id})
}

func (s *Server) handleBuildEvent(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		build := chi.URLParam(r, "build")
		s.mu.Lock()
		s.Events = append(s.Events, Event{BuildID: build, Kind: kind})
		s.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}
}

func (s *Server) handleRegisterTask(w http.ResponseWriter, r *http.Request) {
	build := chi.URLParam(r, "build")
	var req struct {
		TaskID        uuid.UUID   `json:"task_id"`
		DependencyIDs []uuid.UUID `json:"dependency_ids"`
		User          string      `json:"user"`
		CommitHash    string      `json:"commit_hash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	// Idempotent: a re-registration of an already-known task id is a
	// no-op success, not a duplicate (spec.md §4.4) - including the
	// TASK_PENDING event it produces the first time.
	if _, exists := s.Tasks[req.TaskID]; !exists {
		s.Tasks[req.TaskID] = registeredTask{
			DependencyIDs: req.DependencyIDs,
			CommitHash:    req.CommitHash,
			User:          req.User,
		}
		s.Events = append(s.Events, Event{BuildID: build, TaskID: req.TaskID, Kind: "TASK_PENDING"})
	}
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleTaskEvent(w http.ResponseWriter, r *http.Request) {
	build := chi.URLParam(r, "build")
	taskIDStr := chi.URLParam(r, "task")
	action := chi.URLParam(r, "action")
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		http.Error(w, "bad task id", http.StatusBadRequest)
		return
	}

	kind, ok := actionToKind[action]
	if !ok {
		http.Error(w, "unknown action", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	if _, registered := s.Tasks[taskID]; !registered {
		s.mu.Unlock()
		http.Error(w, "task not registered", http.StatusConflict)
		return
	}
	s.Events = append(s.Events, Event{BuildID: build, TaskID: taskID, Kind: kind})
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

var actionToKind = map[string]string{
	"start":            "TASK_STARTED",
	"reference":        "TASK_REFERENCED",
	"suspend":          "TASK_SUSPENDED",
	"resume":           "TASK_RESUMED",
	"waiting_for_lock": "TASK_WAITING_FOR_LOCK",
	"complete":         "TASK_COMPLETED",
	"fail":             "TASK_FAILED",
	"skip":             "TASK_SKIPPED",
	"cancel":           "TASK_CANCELLED",
}

func (s *Server) handleUploadAsset(w http.ResponseWriter, r *http.Request) {
	taskIDStr := chi.URLParam(r, "task")
	taskID, err := uuid.Parse(taskIDStr)
	if err != nil {
		http.Error(w, "bad task id", http.StatusBadRequest)
		return
	}
	var req struct {
		Kind string `json:"kind"`
		Name string `json:"name"`
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	// Idempotent on (task, kind, name): replaces rather than duplicates.
	s.Assets[assetKey{taskID: taskID, kind: req.Kind, name: req.Name}] = req.Body
	s.mu.Unlock()

	w.WriteHeader(http.StatusOK)
}

// AssetBody returns the currently-stored body for (taskID, kind, name),
// and whether it exists - for tests asserting idempotent replace.
func (s *Server) AssetBody(taskID uuid.UUID, kind, name string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.Assets[assetKey{taskID: taskID, kind: kind, name: name}]
	return body, ok
}

// EventKinds returns the Kind of every recorded event, in arrival
// order, for sequencing assertions.
func (s *Server) EventKinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]string, len(s.Events))
	for i, e := range s.Events {
		kinds[i] = e.Kind
	}
	return kinds
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
