package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete rubyenvd configuration.
type Config struct {
	Service    ServiceConfig `yaml:"service"`
	State      StateConfig   `yaml:"state"`
	Ruby       RubyConfig    `yaml:"ruby,omitempty"`
	API        APIConfig     `yaml:"api,omitempty"`
	Workspaces []string      `yaml:"workspaces,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// StateConfig defines state storage settings. Path is the SQLite
// database file; the probe script is materialized alongside it.
type StateConfig struct {
	Path string `yaml:"path"`
}

// RubyConfig defines how a ruby interpreter is located and probed.
type RubyConfig struct {
	Path         string        `yaml:"path,omitempty"`
	Manager      string        `yaml:"manager,omitempty"`
	Shell        string        `yaml:"shell,omitempty"`
	ProbeTimeout time.Duration `yaml:"probe_timeout,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled"`
	Listen  string        `yaml:"listen"`
	Auth    APIAuthConfig `yaml:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is a single bearer token with full access.
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token"`
	Scopes []string `yaml:"scopes"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "rubyenvd",
			LogLevel:  "info",
			LogFormat: "text",
		},
		State: StateConfig{
			Path: defaultStatePath(),
		},
		Ruby: RubyConfig{
			ProbeTimeout: 30 * time.Second,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7879",
		},
	}
}

func defaultStatePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "state", "rubyenvd", "rubyenvd.db")
	}
	return "./rubyenvd.db"
}
