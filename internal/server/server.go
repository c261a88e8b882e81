// ABOUTME: HTTP server wiring routes, auth middleware, and lifecycle
// ABOUTME: Mounts the /v1 API behind JWT auth and the open /health endpoints

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/intellex/agent-registry/internal/auth"
	"github.com/intellex/agent-registry/internal/registry"
	"github.com/intellex/agent-registry/internal/syncer"
)

// Server serves the registry's HTTP JSON API.
type Server struct {
	httpServer *http.Server
	registry   *registry.Service
	syncer     *syncer.Orchestrator
	logger     *slog.Logger
}

// New creates a server listening on addr. All /v1 routes require a valid
// bearer token; the health endpoints are open.
func New(addr string, svc *registry.Service, orch *syncer.Orchestrator, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	s := &Server{
		registry: svc,
		syncer:   orch,
		logger:   logger.With("component", "server"),
	}

	v1 := http.NewServeMux()
	v1.HandleFunc("POST /v1/agents", s.handleRegister)
	v1.HandleFunc("GET /v1/agents/{id}", s.handleGetAgent)
	v1.HandleFunc("GET /v1/agents/{id}/skills", s.handleAgentSkills)
	v1.HandleFunc("GET /v1/agents/{id}/reputation", s.handleAgentReputation)
	v1.HandleFunc("GET /v1/agents/{id}/task-history", s.handleTaskHistory)
	v1.HandleFunc("GET /v1/agents/{id}/reputation-history", s.handleReputationHistory)
	v1.HandleFunc("PUT /v1/agents/{id}/reputation", s.handleApplyReputation)
	v1.HandleFunc("POST /v1/agents/{id}/sync", s.handleSync)
	v1.HandleFunc("GET /v1/sync/{job_id}", s.handleSyncJob)
	v1.HandleFunc("GET /v1/skills/{skill}/agents", s.handleSkillAgents)
	v1.HandleFunc("GET /v1/stats", s.handleStats)

	mux := http.NewServeMux()
	mux.Handle("/v1/", auth.Middleware(verifier)(v1))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Handler returns the root handler, used by tests to serve through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving and blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady reports readiness by touching the store through a cheap query.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.registry.TotalAgents(r.Context()); err != nil {
		s.logger.Warn("readiness check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
