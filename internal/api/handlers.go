package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workspaces:    len(s.directory.Contexts()),
	})
}

// handleListWorkspaces handles GET /v1/workspaces.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	contexts := s.directory.Contexts()
	out := make([]WorkspaceResponse, 0, len(contexts))
	for _, ws := range contexts {
		resolver, ok := s.directory.Resolver(ws.Key)
		if !ok {
			continue
		}
		out = append(out, WorkspaceResponse{Workspace: ws, Definition: resolver.Current()})
	}
	respondJSON(w, http.StatusOK, out)
}

// handleCreateWorkspace handles POST /v1/workspaces. Registering an
// already-known folder is idempotent and returns the existing state.
func (s *Server) handleCreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkspaceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Dir == "" {
		s.writeError(w, http.StatusBadRequest, "dir is required")
		return
	}

	ws, err := rubyenv.NewWorkspaceContext(req.Dir)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid workspace dir: "+err.Error())
		return
	}

	resolver := s.directory.EnsureContext(r.Context(), ws)
	respondJSON(w, http.StatusCreated, WorkspaceResponse{
		Workspace:  resolver.Workspace(),
		Definition: resolver.Current(),
	})
}

// handleDeleteWorkspace handles DELETE /v1/workspaces/{key}.
func (s *Server) handleDeleteWorkspace(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	if !s.directory.RemoveContext(key) {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleGetRuby handles GET /v1/workspaces/{key}/ruby.
func (s *Server) handleGetRuby(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.directory.Resolver(chi.URLParam(r, "key"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	respondJSON(w, http.StatusOK, WorkspaceResponse{
		Workspace:  resolver.Workspace(),
		Definition: resolver.Current(),
	})
}

// handleResolve handles POST /v1/workspaces/{key}/resolve. Runs a fresh
// resolution cycle and returns the outcome.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.directory.Resolver(chi.URLParam(r, "key"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}
	def := resolver.Resolve(r.Context())
	respondJSON(w, http.StatusOK, WorkspaceResponse{
		Workspace:  resolver.Workspace(),
		Definition: def,
	})
}

// handleSelectRubyPath handles PUT /v1/workspaces/{key}/ruby-path. An empty
// path clears the per-workspace override.
func (s *Server) handleSelectRubyPath(w http.ResponseWriter, r *http.Request) {
	resolver, ok := s.directory.Resolver(chi.URLParam(r, "key"))
	if !ok {
		s.writeError(w, http.StatusNotFound, "workspace not found")
		return
	}

	var req SelectRubyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	def, err := resolver.SelectPath(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "failed to persist selection: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, WorkspaceResponse{
		Workspace:  resolver.Workspace(),
		Definition: def,
	})
}

// handleReload handles POST /v1/reload.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		s.writeError(w, http.StatusNotImplemented, "reload not supported")
		return
	}
	if err := s.reload(r.Context()); err != nil {
		s.writeError(w, http.StatusInternalServerError, "reload failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
