package registry

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rubyenvd/rubyenvd/internal/events"
	"github.com/rubyenvd/rubyenvd/internal/manager"
	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
	"github.com/rubyenvd/rubyenvd/internal/store"
	"github.com/rubyenvd/rubyenvd/internal/wire"
)

// memStore is an in-memory OverrideStore.
type memStore struct {
	values map[string]string
}

func newMemStore() *memStore { return &memStore{values: map[string]string{}} }

func (m *memStore) Get(_ context.Context, key string) (string, error) {
	v, ok := m.values[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m *memStore) Set(_ context.Context, key, value string) error {
	m.values[key] = value
	return nil
}

func (m *memStore) Delete(_ context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func newTestRegistry(t *testing.T, st Settings) (*Registry, *rubyenv.Bus) {
	t.Helper()
	bus := rubyenv.NewBus()
	g, err := New(bus, newMemStore(), "", st)
	require.NoError(t, err)
	return g, bus
}

// fakeRubyScript writes an executable stand-in interpreter that prints a
// valid activation frame for the given version on stderr.
func fakeRubyScript(t *testing.T, version string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake interpreter scripts require a POSIX shell")
	}
	frame := wire.Encode(wire.Payload{
		Version:      version,
		GemPaths:     []string{"/gems"},
		Capabilities: []wire.Capability{wire.CapYJIT},
		Env:          map[string]string{"PATH": "/usr/bin"},
	})
	path := filepath.Join(t.TempDir(), "ruby")
	script := "#!/bin/sh\nprintf '%s' '" + frame + "' 1>&2\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestEnsureContextIdempotent(t *testing.T) {
	ctx := context.Background()
	g, bus := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	count := 0
	bus.Subscribe(func(events.Envelope[rubyenv.ChangeEvent]) { count++ })

	ws := rubyenv.DefaultWorkspaceContext()
	r1 := g.EnsureContext(ctx, ws)
	r2 := g.EnsureContext(ctx, ws)

	assert.Same(t, r1, r2)
	assert.Equal(t, 1, count, "re-registering must not force re-resolution")
}

func TestActivateAllDefaultsWhenNoFolders(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	g.ActivateAll(ctx, nil)

	contexts := g.Contexts()
	require.Len(t, contexts, 1)
	assert.True(t, contexts[0].Default)

	def, ok := g.Lookup(rubyenv.DefaultContextKey)
	require.True(t, ok)
	assert.Equal(t, rubyenv.KindUnresolved, def.Kind, "no configured path means unresolved, not error")
}

func TestActivateAllRegistersFolders(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	dirA, dirB := t.TempDir(), t.TempDir()
	g.ActivateAll(ctx, []string{dirA, dirB})

	assert.Len(t, g.Contexts(), 2)
}

func TestLookupUnknownContext(t *testing.T) {
	g, _ := newTestRegistry(t, Settings{Manager: manager.IDConfigured})
	_, ok := g.Lookup("missing")
	assert.False(t, ok)
}

func TestRemoveContextPublishesFinalEvent(t *testing.T) {
	ctx := context.Background()
	g, bus := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	ws, err := rubyenv.NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	g.EnsureContext(ctx, ws)

	var last rubyenv.ChangeEvent
	bus.Subscribe(func(ev events.Envelope[rubyenv.ChangeEvent]) { last = ev.Payload })

	require.True(t, g.RemoveContext(ws.Key))
	assert.Equal(t, ws.Key, last.Workspace.Key)
	assert.Equal(t, rubyenv.KindUnresolved, last.Definition.Kind)

	_, ok := g.Lookup(ws.Key)
	assert.False(t, ok)

	assert.False(t, g.RemoveContext(ws.Key), "removing twice reports absence")
}

func TestResolveThroughRealInvoker(t *testing.T) {
	ctx := context.Background()
	ruby := fakeRubyScript(t, "3.3.0")

	g, _ := newTestRegistry(t, Settings{
		Manager:      manager.IDConfigured,
		RubyPath:     ruby,
		ProbeTimeout: 5 * time.Second,
	})

	ws, err := rubyenv.NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	g.EnsureContext(ctx, ws)

	def, ok := g.Lookup(ws.Key)
	require.True(t, ok)
	require.Equal(t, rubyenv.KindResolved, def.Kind)
	assert.Equal(t, "3.3.0", def.Version)
	assert.Equal(t, []string{"/gems"}, def.GemPaths)
	assert.True(t, def.HasCapability(wire.CapYJIT))
}

func TestReloadReResolvesEveryContext(t *testing.T) {
	ctx := context.Background()
	g, bus := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	wsA, err := rubyenv.NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	wsB, err := rubyenv.NewWorkspaceContext(t.TempDir())
	require.NoError(t, err)
	g.EnsureContext(ctx, wsA)
	g.EnsureContext(ctx, wsB)

	count := 0
	bus.Subscribe(func(events.Envelope[rubyenv.ChangeEvent]) { count++ })

	ruby := fakeRubyScript(t, "3.4.1")
	require.NoError(t, g.Reload(ctx, Settings{
		Manager:      manager.IDConfigured,
		RubyPath:     ruby,
		ProbeTimeout: 5 * time.Second,
	}))

	assert.Equal(t, 2, count, "reload re-resolves every registered context")
	for _, key := range []string{wsA.Key, wsB.Key} {
		def, ok := g.Lookup(key)
		require.True(t, ok)
		assert.Equal(t, rubyenv.KindResolved, def.Kind)
		assert.Equal(t, "3.4.1", def.Version)
	}
}

func TestReloadRejectsUnsupportedManager(t *testing.T) {
	ctx := context.Background()
	g, _ := newTestRegistry(t, Settings{Manager: manager.IDConfigured})

	err := g.Reload(ctx, Settings{Manager: manager.IDRbenv})
	assert.Error(t, err)
}

func TestNewRejectsUnsupportedManager(t *testing.T) {
	bus := rubyenv.NewBus()
	_, err := New(bus, newMemStore(), "", Settings{Manager: manager.IDChruby})
	assert.Error(t, err)
}
