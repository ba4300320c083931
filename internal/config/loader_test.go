package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
service:
  name: rubyenvd-test
  log_level: debug
  log_format: json
state:
  path: /tmp/rubyenvd-test/state.db
ruby:
  path: /opt/rubies/3.3.4/bin/ruby
  manager: configured
  shell: /bin/bash
  probe_timeout: 10s
workspaces:
  - /srv/app-a
  - /srv/app-b
api:
  enabled: true
  listen: 127.0.0.1:9911
  auth:
    tokens:
      - token: secret-token
        scopes: ["workspaces:ro", "events:ro"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rubyenvd-test", cfg.Service.Name)
	assert.Equal(t, "debug", cfg.Service.LogLevel)
	assert.Equal(t, "json", cfg.Service.LogFormat)
	assert.Equal(t, "/tmp/rubyenvd-test/state.db", cfg.State.Path)
	assert.Equal(t, "/opt/rubies/3.3.4/bin/ruby", cfg.Ruby.Path)
	assert.Equal(t, "configured", cfg.Ruby.Manager)
	assert.Equal(t, 10*time.Second, cfg.Ruby.ProbeTimeout)
	assert.Equal(t, []string{"/srv/app-a", "/srv/app-b"}, cfg.Workspaces)
	assert.True(t, cfg.API.Enabled)
	require.Len(t, cfg.API.Auth.Tokens, 1)
	assert.Equal(t, []string{"workspaces:ro", "events:ro"}, cfg.API.Auth.Tokens[0].Scopes)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/rubyenvd-test/state.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "rubyenvd", cfg.Service.Name)
	assert.Equal(t, "info", cfg.Service.LogLevel)
	assert.Equal(t, "text", cfg.Service.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.Ruby.ProbeTimeout)
	assert.False(t, cfg.API.Enabled)
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	path := writeConfig(t, `
service:
  log_level: verbose
state:
  path: /tmp/x.db
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service.log_level")
}

func TestLoadAcceptsRecognizedManager(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/x.db
ruby:
  manager: rbenv
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "rbenv", cfg.Ruby.Manager)
}

func TestLoadRejectsUnknownManager(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/x.db
ruby:
  manager: frobnicate
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ruby.manager")
}

func TestLoadInterpolatesEnv(t *testing.T) {
	t.Setenv("RUBYENVD_TEST_RUBY", "/usr/local/bin/ruby")
	path := writeConfig(t, `
state:
  path: /tmp/x.db
ruby:
  path: ${RUBYENVD_TEST_RUBY}
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/usr/local/bin/ruby", cfg.Ruby.Path)
}

func TestLoadRejectsUnresolvedTokenEnv(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/x.db
api:
  enabled: true
  listen: 127.0.0.1:9911
  auth:
    tokens:
      - token: ${RUBYENVD_TEST_MISSING_TOKEN}
        scopes: ["workspaces:ro"]
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUBYENVD_TEST_MISSING_TOKEN")
}

func TestLoadRejectsEmptyTokenScopes(t *testing.T) {
	path := writeConfig(t, `
state:
  path: /tmp/x.db
api:
  enabled: true
  listen: 127.0.0.1:9911
  auth:
    tokens:
      - token: abc
        scopes: []
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scopes")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadDirectoryWithConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("state:\n  path: /tmp/x.db\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x.db", cfg.State.Path)
}

func TestLoadOrDefaultWithoutFile(t *testing.T) {
	t.Setenv("RUBYENVD_CONFIG", filepath.Join(t.TempDir(), "absent.yaml"))
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, "rubyenvd", cfg.Service.Name)
	assert.NotEmpty(t, cfg.State.Path)
}

func TestDiscoverConfigPathEnvOverride(t *testing.T) {
	path := writeConfig(t, "state:\n  path: /tmp/x.db\n")
	t.Setenv("RUBYENVD_CONFIG", path)

	found, err := DiscoverConfigPath()
	require.NoError(t, err)
	assert.Equal(t, path, found)
}
