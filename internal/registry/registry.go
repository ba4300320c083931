// Package registry maintains one environment resolver per known workspace
// context, including the synthetic default context used when no folder is
// open.
package registry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rubyenvd/rubyenvd/internal/log"
	"github.com/rubyenvd/rubyenvd/internal/manager"
	"github.com/rubyenvd/rubyenvd/internal/probe"
	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
)

// OverrideStore is the persisted key-value store shared by all resolvers,
// partitioned by per-context keys.
type OverrideStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Settings is the slice of configuration the registry consumes. A Reload
// swaps it wholesale and re-resolves every registered context.
type Settings struct {
	// RubyPath is the general fallback executable path. May be empty.
	RubyPath string

	// Manager selects the version-manager strategy.
	Manager manager.ID

	// Shell is the user's interactive shell for probe wrapping.
	Shell string

	// ProbeTimeout bounds one probe attempt.
	ProbeTimeout time.Duration
}

// deps bundles the strategy and probe runner derived from Settings so both
// swap atomically on reload.
type deps struct {
	strategy rubyenv.Strategy
	runner   rubyenv.ProbeRunner
}

// Registry owns the set of active resolvers. It is an injected object owned
// by the daemon or CLI lifecycle, not a process-wide singleton.
type Registry struct {
	bus        *rubyenv.Bus
	overrides  OverrideStore
	scriptPath string
	logger     *slog.Logger

	current atomic.Pointer[deps]

	mu        sync.Mutex
	resolvers map[string]*rubyenv.Resolver
}

// New creates a registry. No contexts are registered until ActivateAll or
// EnsureContext is called.
func New(bus *rubyenv.Bus, overrides OverrideStore, scriptPath string, st Settings) (*Registry, error) {
	g := &Registry{
		bus:        bus,
		overrides:  overrides,
		scriptPath: scriptPath,
		logger:     log.WithComponent("registry"),
		resolvers:  map[string]*rubyenv.Resolver{},
	}
	d, err := g.buildDeps(st)
	if err != nil {
		return nil, err
	}
	g.current.Store(d)
	return g, nil
}

func (g *Registry) buildDeps(st Settings) (*deps, error) {
	strategy, err := manager.ForID(st.Manager, g.overrides, st.RubyPath)
	if err != nil {
		return nil, err
	}
	return &deps{
		strategy: strategy,
		runner:   probe.NewInvoker(st.Shell, st.ProbeTimeout),
	}, nil
}

// EnsureContext registers a resolver for ws if none exists and runs its
// first resolution. Idempotent: an already-registered context is returned
// untouched, without forcing re-resolution.
func (g *Registry) EnsureContext(ctx context.Context, ws rubyenv.WorkspaceContext) *rubyenv.Resolver {
	g.mu.Lock()
	r, exists := g.resolvers[ws.Key]
	if !exists {
		r = rubyenv.NewResolver(ws, switchedStrategy{g}, switchedRunner{g}, g.overrides, g.bus, g.scriptPath)
		g.resolvers[ws.Key] = r
	}
	g.mu.Unlock()

	if !exists {
		g.logger.Info("workspace registered", "workspace", ws.Key, "name", ws.Name)
		r.Resolve(ctx)
	}
	return r
}

// ActivateAll registers the configured workspace folders, or the default
// context when none are configured. Folders that cannot be canonicalized
// are skipped with a warning.
func (g *Registry) ActivateAll(ctx context.Context, folders []string) {
	if len(folders) == 0 {
		g.EnsureContext(ctx, rubyenv.DefaultWorkspaceContext())
		return
	}
	for _, dir := range folders {
		ws, err := rubyenv.NewWorkspaceContext(dir)
		if err != nil {
			g.logger.Warn("skipping workspace folder", "dir", dir, "error", err)
			continue
		}
		g.EnsureContext(ctx, ws)
	}
}

// RemoveContext discards the resolver for a removed workspace folder and
// publishes a final Unresolved event so subscribers can drop the row.
func (g *Registry) RemoveContext(key string) bool {
	g.mu.Lock()
	r, ok := g.resolvers[key]
	if ok {
		delete(g.resolvers, key)
	}
	g.mu.Unlock()

	if !ok {
		return false
	}

	g.logger.Info("workspace removed", "workspace", key)
	g.bus.Publish(rubyenv.ChangeEvent{
		Workspace:  r.Workspace(),
		CycleID:    uuid.NewString(),
		Definition: rubyenv.Unresolved(),
	})
	return true
}

// Lookup returns the current definition for a context key, or false if no
// resolver is registered for it.
func (g *Registry) Lookup(key string) (rubyenv.Definition, bool) {
	g.mu.Lock()
	r, ok := g.resolvers[key]
	g.mu.Unlock()
	if !ok {
		return rubyenv.Definition{}, false
	}
	return r.Current(), true
}

// Resolver returns the resolver registered for a context key.
func (g *Registry) Resolver(key string) (*rubyenv.Resolver, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	r, ok := g.resolvers[key]
	return r, ok
}

// Contexts returns the registered workspace contexts.
func (g *Registry) Contexts() []rubyenv.WorkspaceContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]rubyenv.WorkspaceContext, 0, len(g.resolvers))
	for _, r := range g.resolvers {
		out = append(out, r.Workspace())
	}
	return out
}

// Reload swaps settings and re-resolves every registered resolver. The
// re-resolution is a broadcast, not selective.
func (g *Registry) Reload(ctx context.Context, st Settings) error {
	d, err := g.buildDeps(st)
	if err != nil {
		return err
	}
	g.current.Store(d)

	g.mu.Lock()
	resolvers := make([]*rubyenv.Resolver, 0, len(g.resolvers))
	for _, r := range g.resolvers {
		resolvers = append(resolvers, r)
	}
	g.mu.Unlock()

	g.logger.Info("settings changed, re-resolving all workspaces", "count", len(resolvers))
	for _, r := range resolvers {
		r.Resolve(ctx)
	}
	return nil
}

// switchedStrategy and switchedRunner delegate to the registry's current
// deps so resolvers pick up reloaded settings without being rebuilt.
type switchedStrategy struct{ g *Registry }

func (s switchedStrategy) ID() string {
	return s.g.current.Load().strategy.ID()
}

func (s switchedStrategy) ExecutablePath(ctx context.Context, ws rubyenv.WorkspaceContext) (string, bool, error) {
	return s.g.current.Load().strategy.ExecutablePath(ctx, ws)
}

type switchedRunner struct{ g *Registry }

func (s switchedRunner) Run(ctx context.Context, req probe.Request) (probe.Output, error) {
	return s.g.current.Load().runner.Run(ctx, req)
}
