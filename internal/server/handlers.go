// ABOUTME: HTTP handlers for the /v1 registry API
// ABOUTME: Maps store and registry sentinel errors to JSON status responses

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/intellex/agent-registry/internal/auth"
	"github.com/intellex/agent-registry/internal/registry"
	"github.com/intellex/agent-registry/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps sentinel errors to status codes. Anything unmapped
// is a 500 with a generic message; the detail stays in the logs.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, store.ErrJobNotFound):
		writeError(w, http.StatusNotFound, "sync job not found")
	case errors.Is(err, store.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, "agent already registered")
	case errors.Is(err, store.ErrStaleSnapshot):
		writeError(w, http.StatusConflict, "stale reputation snapshot")
	case errors.Is(err, registry.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "only the reputation service can update reputation")
	case errors.Is(err, registry.ErrEmptyIdentity):
		writeError(w, http.StatusBadRequest, "empty caller identity")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// plainCaller returns the authenticated caller, rejecting capability tokens.
// Capability tokens are minted for exactly one operation (applying reputation
// snapshots) and are not valid anywhere else.
func plainCaller(w http.ResponseWriter, r *http.Request) *auth.Caller {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return nil
	}
	if caller.IsCapability() {
		writeError(w, http.StatusForbidden, "capability token not valid for this operation")
		return nil
	}
	return caller
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	caller := plainCaller(w, r)
	if caller == nil {
		return
	}

	var metadata store.AgentMetadata
	if err := json.NewDecoder(r.Body).Decode(&metadata); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.registry.Register(r.Context(), caller.ID, metadata); err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"owner": caller.ID})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.registry.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleAgentSkills(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("id")
	skills, err := s.registry.SkillsOf(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "skills": skills})
}

func (s *Server) handleAgentReputation(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("id")
	rep, err := s.registry.ReputationOf(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "reputation": rep})
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("id")

	offset, ok := parseUintParam(w, r, "offset", 0)
	if !ok {
		return
	}
	limit, ok := parseUintParam(w, r, "limit", store.TaskHistoryDefaultLimit)
	if !ok {
		return
	}

	history, err := s.registry.TaskHistory(r.Context(), owner, offset, limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "task_history": history})
}

func (s *Server) handleReputationHistory(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("id")
	history, err := s.registry.ReputationHistory(r.Context(), owner)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "reputation_history": history})
}

// handleApplyReputation is the one endpoint that accepts capability tokens.
// A capability carries the sync sequence of its chain; a plain token from the
// reputation service is a direct authoritative push.
func (s *Server) handleApplyReputation(w http.ResponseWriter, r *http.Request) {
	caller := auth.CallerFromContext(r.Context())
	if caller == nil {
		writeError(w, http.StatusUnauthorized, "missing caller identity")
		return
	}
	if caller.IsCapability() && caller.Scope != auth.ScopeReputationApply {
		writeError(w, http.StatusForbidden, "capability token not valid for this operation")
		return
	}

	seq := store.DirectPush
	if caller.IsCapability() {
		seq = caller.Seq
	}

	var snap store.Snapshot
	if err := json.NewDecoder(r.Body).Decode(&snap); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	owner := r.PathValue("id")
	if err := s.registry.ApplyReputation(r.Context(), caller.ID, owner, &snap, seq); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "reputation": snap.Reputation})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	caller := plainCaller(w, r)
	if caller == nil {
		return
	}

	job, err := s.syncer.Sync(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleSyncJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.syncer.Job(r.Context(), r.PathValue("job_id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleSkillAgents(w http.ResponseWriter, r *http.Request) {
	skill := r.PathValue("skill")
	owners, err := s.registry.AgentsBySkill(r.Context(), skill)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"skill": skill, "agents": owners})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.registry.TotalAgents(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total_agents": total})
}

// parseUintParam reads an unsigned query parameter, falling back to def when
// absent. Reports false after writing a 400 for unparsable values.
func parseUintParam(w http.ResponseWriter, r *http.Request, name string, def uint64) (uint64, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" parameter")
		return 0, false
	}
	return v, true
}
