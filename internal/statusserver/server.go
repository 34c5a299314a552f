// Package statusserver implements the optional read-only HTTP server
// that exposes the last build's status, grounded on
// internal/registry/registrytest's chi-based wiring style and the
// teacher's admin-server convention of a small chi.Mux plus graceful
// shutdown via http.Server.Shutdown.
package statusserver

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"

	"github.com/stardag-dev/stardag-go/internal/logger"
)

// Server serves whatever build status currently sits at statusPath,
// re-reading it on every request: the CLI's build command is what
// writes that file, so the server never goes stale between builds.
type Server struct {
	statusPath string
	httpServer *http.Server
}

// New builds a Server listening on addr, reading status from
// statusPath. log is not used: the request logging middleware writes
// through its own httplog logger.
func New(addr, statusPath string, log logger.Logger) *Server {
	hlog := httplog.NewLogger("stardag-statusserver", httplog.Options{
		JSON:     false,
		LogLevel: slog.LevelInfo,
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(hlog))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	s := &Server{statusPath: statusPath}
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	data, err := os.ReadFile(s.statusPath)
	if os.IsNotExist(err) {
		http.Error(w, "no build has run yet", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		http.Error(w, "corrupt status file: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// Serve blocks until the server stops or fails to start.
func (s *Server) Serve() error {
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
