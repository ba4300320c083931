// Package doctor validates rubyenvd configuration and the probe
// environment before the daemon starts.
package doctor

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rubyenvd/rubyenvd/internal/auth"
	"github.com/rubyenvd/rubyenvd/internal/config"
	"github.com/rubyenvd/rubyenvd/internal/manager"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates configuration against the host environment.
type Doctor struct {
	cfg *config.Config
}

// New creates a Doctor from a loaded config.
func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateStatePath(r)
	d.validateManager(r)
	d.validateRubyPath(r)
	d.validateShell(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnMissingWorkspaces(r)
	d.warnSuspiciousTimeout(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateStatePath checks that the state directory exists or can be
// created, and is writable.
func (d *Doctor) validateStatePath(r *Result) {
	if d.cfg.State.Path == "" {
		d.addError(r, "state", "state.path", "state.path is required")
		return
	}

	dir := filepath.Dir(d.cfg.State.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("cannot create state directory %s: %v", dir, err))
		return
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		d.addError(r, "state", "state.path",
			fmt.Sprintf("state directory %s is not writable: %v", dir, err))
		return
	}
	probe.Close()
	os.Remove(probe.Name())
}

// validateManager checks the configured version manager is implemented,
// not merely recognized.
func (d *Doctor) validateManager(r *Result) {
	id, err := manager.ParseID(d.cfg.Ruby.Manager)
	if err != nil {
		d.addError(r, "ruby", "ruby.manager", err.Error())
		return
	}
	if _, err := manager.ForID(id, nil, ""); err != nil {
		d.addError(r, "ruby", "ruby.manager", err.Error())
	}
}

// validateRubyPath warns when the configured interpreter is unlikely to be
// runnable. The probe goes through the user's shell, so a missing file is
// not a hard error; the shell may still resolve a bare command name.
func (d *Doctor) validateRubyPath(r *Result) {
	path := d.cfg.Ruby.Path
	if path == "" {
		if _, err := exec.LookPath("ruby"); err != nil {
			d.addWarning(r, "ruby", "ruby.path",
				"no ruby.path configured and no ruby on PATH; workspaces resolve only via per-workspace selections")
		}
		return
	}

	if !filepath.IsAbs(path) {
		if _, err := exec.LookPath(path); err != nil {
			d.addWarning(r, "ruby", "ruby.path",
				fmt.Sprintf("command %q not found on PATH (the login shell may still resolve it)", path))
		}
		return
	}

	info, err := os.Stat(path)
	if err != nil {
		d.addWarning(r, "ruby", "ruby.path",
			fmt.Sprintf("%s does not exist (the login shell may still resolve it)", path))
		return
	}
	if info.Mode()&0o111 == 0 {
		d.addError(r, "ruby", "ruby.path", fmt.Sprintf("%s is not executable", path))
	}
}

// validateShell checks the shell probes run through, falling back to
// $SHELL when unconfigured.
func (d *Doctor) validateShell(r *Result) {
	shell := d.cfg.Ruby.Shell
	field := "ruby.shell"
	if shell == "" {
		shell = os.Getenv("SHELL")
		field = "$SHELL"
	}
	if shell == "" {
		d.addWarning(r, "ruby", field,
			"no shell configured and $SHELL unset; probes run without a login shell and may miss version-manager init")
		return
	}
	if _, err := os.Stat(shell); err != nil {
		d.addError(r, "ruby", field, fmt.Sprintf("shell %s does not exist", shell))
	}
}

// validateAPIConfig checks API server settings.
func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "api", "api.auth", "API enabled but no authentication configured")
	}
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		for j, scope := range token.Scopes {
			field := fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j)
			d.validateSingleScope(r, scope, field)
		}
	}
}

func (d *Doctor) validateSingleScope(r *Result, scope, field string) {
	if auth.KnownScope(scope) {
		return
	}

	// Decompose the bad scope for a specific message.
	parts := strings.SplitN(scope, ":", 2)
	if len(parts) < 2 {
		d.addError(r, "token_scopes", field,
			fmt.Sprintf("invalid scope %q (expected format: resource:access)", scope))
		return
	}

	resource, access := parts[0], parts[1]
	if resource != "workspaces" && resource != "events" {
		d.addError(r, "token_scopes", field,
			fmt.Sprintf("scope %q references unknown resource %q", scope, resource))
		return
	}
	if access != "ro" && access != "rw" {
		d.addError(r, "token_scopes", field,
			fmt.Sprintf("scope %q: invalid access type %q (expected ro or rw)", scope, access))
	}
}

// warnMissingWorkspaces flags configured workspace folders that do not
// exist. The daemon skips them at startup rather than failing.
func (d *Doctor) warnMissingWorkspaces(r *Result) {
	for i, dir := range d.cfg.Workspaces {
		info, err := os.Stat(dir)
		if err != nil {
			d.addWarning(r, "workspaces", fmt.Sprintf("workspaces[%d]", i),
				fmt.Sprintf("folder %s does not exist", dir))
			continue
		}
		if !info.IsDir() {
			d.addError(r, "workspaces", fmt.Sprintf("workspaces[%d]", i),
				fmt.Sprintf("%s is not a directory", dir))
		}
	}
}

// warnSuspiciousTimeout flags probe timeouts too short for a login shell
// plus interpreter startup.
func (d *Doctor) warnSuspiciousTimeout(r *Result) {
	if d.cfg.Ruby.ProbeTimeout > 0 && d.cfg.Ruby.ProbeTimeout < time.Second {
		d.addWarning(r, "ruby", "ruby.probe_timeout",
			fmt.Sprintf("probe timeout %s is very short; login shell startup alone can exceed it", d.cfg.Ruby.ProbeTimeout))
	}
}

// FormatHuman renders a result for terminal output.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid && len(r.Warnings) > 0 {
		b.WriteString("Configuration valid")
		fmt.Fprintf(&b, " (%d warning(s))\n", len(r.Warnings))
	}

	if !r.Valid {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
