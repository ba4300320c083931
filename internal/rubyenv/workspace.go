// Package rubyenv owns workspace-scoped Ruby environment resolution: the
// workspace context model, the tagged resolution result, and the resolver
// state machine that probes an interpreter and publishes changes.
package rubyenv

import (
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/zeebo/blake3"
)

// DefaultContextKey identifies the synthetic context used when no workspace
// folder is open.
const DefaultContextKey = "default"

// overrideKeyPrefix is the persisted-state key prefix for manually selected
// interpreter paths.
const overrideKeyPrefix = "selected-ruby-path"

// WorkspaceContext identifies one scope of resolution: a real workspace
// folder, or the synthetic default when none is open. Exactly one context
// maps to a given canonical folder location.
type WorkspaceContext struct {
	// Key is derived from the folder's canonical location, or
	// DefaultContextKey for the synthetic context.
	Key string `json:"key"`

	// Name is a human-readable label, usually the folder's base name.
	Name string `json:"name"`

	// Dir is the working directory probes run in. Empty for the default
	// context, which probes from the process's own working directory.
	Dir string `json:"dir,omitempty"`

	// Default marks the synthetic no-folder context.
	Default bool `json:"default,omitempty"`
}

// NewWorkspaceContext builds the context for a workspace folder. The path is
// canonicalized so that equivalent spellings of one folder share a key.
func NewWorkspaceContext(dir string) (WorkspaceContext, error) {
	if dir == "" {
		return WorkspaceContext{}, fmt.Errorf("workspace directory is empty")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return WorkspaceContext{}, fmt.Errorf("canonicalize workspace directory: %w", err)
	}
	abs = filepath.Clean(abs)

	sum := blake3.Sum256([]byte(abs))
	return WorkspaceContext{
		Key:  hex.EncodeToString(sum[:])[:16],
		Name: filepath.Base(abs),
		Dir:  abs,
	}, nil
}

// DefaultWorkspaceContext returns the synthetic context for "no folder open".
func DefaultWorkspaceContext() WorkspaceContext {
	return WorkspaceContext{
		Key:     DefaultContextKey,
		Name:    "(no workspace)",
		Default: true,
	}
}

// OverrideKey is the persisted-state key holding this context's manually
// selected interpreter path: the bare prefix for the default context, or
// prefix:key for a named workspace.
func (w WorkspaceContext) OverrideKey() string {
	if w.Default {
		return overrideKeyPrefix
	}
	return overrideKeyPrefix + ":" + w.Key
}
