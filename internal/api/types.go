package api

import (
	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
)

// WorkspaceResponse pairs a workspace context with its current ruby
// definition.
type WorkspaceResponse struct {
	Workspace  rubyenv.WorkspaceContext `json:"workspace"`
	Definition rubyenv.Definition       `json:"definition"`
}

// CreateWorkspaceRequest is the JSON body for POST /v1/workspaces.
type CreateWorkspaceRequest struct {
	Dir string `json:"dir"`
}

// SelectRubyRequest is the JSON body for PUT /v1/workspaces/{key}/ruby-path.
// An empty path clears the override.
type SelectRubyRequest struct {
	Path string `json:"path"`
}

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workspaces    int    `json:"workspaces"`
}
