package rubyenv

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rubyenvd/rubyenvd/internal/events"
	"github.com/rubyenvd/rubyenvd/internal/log"
	"github.com/rubyenvd/rubyenvd/internal/probe"
	"github.com/rubyenvd/rubyenvd/internal/wire"
)

// Strategy decides which executable to probe for a workspace. The ok return
// is false when no path could be determined, which is not a failure.
type Strategy interface {
	ID() string
	ExecutablePath(ctx context.Context, ws WorkspaceContext) (path string, ok bool, err error)
}

// ProbeRunner executes one activation probe.
type ProbeRunner interface {
	Run(ctx context.Context, req probe.Request) (probe.Output, error)
}

// OverrideStore persists manually selected interpreter paths.
type OverrideStore interface {
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Bus is the change-notification bus resolvers publish to.
type Bus = events.Bus[ChangeEvent]

// NewBus creates a bus sized for the daemon's SSE replay window.
func NewBus() *Bus {
	return events.NewBus[ChangeEvent](256)
}

// Resolver owns the resolved state for exactly one WorkspaceContext and
// refreshes it on demand. All probe failures are absorbed here and surface
// as the Error definition; nothing escapes to callers.
type Resolver struct {
	ws         WorkspaceContext
	strategy   Strategy
	runner     ProbeRunner
	overrides  OverrideStore
	bus        *Bus
	scriptPath string
	logger     *slog.Logger

	// resolveMu serializes Resolve so overlapping calls apply in start
	// order. cycleSeq backstops that discipline: a result is applied only
	// while its cycle is still the newest.
	resolveMu  sync.Mutex
	cycleSeq   int64
	appliedSeq int64

	stateMu sync.RWMutex
	current Definition
}

// NewResolver creates a resolver in the Unresolved state. No probe runs
// until Resolve is called.
func NewResolver(ws WorkspaceContext, strategy Strategy, runner ProbeRunner, overrides OverrideStore, bus *Bus, scriptPath string) *Resolver {
	return &Resolver{
		ws:         ws,
		strategy:   strategy,
		runner:     runner,
		overrides:  overrides,
		bus:        bus,
		scriptPath: scriptPath,
		logger:     log.WithWorkspace(ws.Key).With(slog.String("component", "resolver")),
		current:    Unresolved(),
	}
}

// Workspace returns the owning context.
func (r *Resolver) Workspace() WorkspaceContext {
	return r.ws
}

// Current returns the last-resolved definition without side effects. It
// never blocks on a probe.
func (r *Resolver) Current() Definition {
	r.stateMu.RLock()
	defer r.stateMu.RUnlock()
	return r.current
}

// Resolve runs one resolution cycle and returns the resulting definition.
// Exactly one ChangeEvent is published per call. Failures never propagate
// as errors; they become the Error definition.
func (r *Resolver) Resolve(ctx context.Context) Definition {
	r.resolveMu.Lock()
	defer r.resolveMu.Unlock()

	r.cycleSeq++
	seq := r.cycleSeq
	cycleID := uuid.NewString()
	logger := r.logger.With(slog.String("cycle_id", cycleID))

	def := r.runCycle(ctx, logger)
	return r.apply(seq, cycleID, def, logger)
}

// SelectPath persists an explicit user-chosen executable path for this
// workspace, then resolves. An empty path clears the override.
func (r *Resolver) SelectPath(ctx context.Context, path string) (Definition, error) {
	key := r.ws.OverrideKey()
	if path == "" {
		if err := r.overrides.Delete(ctx, key); err != nil {
			return r.Current(), err
		}
	} else {
		if err := r.overrides.Set(ctx, key, path); err != nil {
			return r.Current(), err
		}
	}
	return r.Resolve(ctx), nil
}

func (r *Resolver) runCycle(ctx context.Context, logger *slog.Logger) Definition {
	path, ok, err := r.strategy.ExecutablePath(ctx, r.ws)
	if err != nil {
		logger.Error("strategy failed to determine executable path", "strategy", r.strategy.ID(), "error", err)
		return Failed()
	}
	if !ok {
		logger.Debug("no ruby executable configured", "strategy", r.strategy.ID())
		return Unresolved()
	}

	out, err := r.runner.Run(ctx, probe.Request{
		RubyPath:   path,
		Dir:        r.ws.Dir,
		ScriptPath: r.scriptPath,
	})
	if err != nil {
		logger.Warn("activation probe failed", "ruby", path, "error", err)
		return Failed()
	}

	payload, err := wire.Decode(out.Stderr)
	if err != nil {
		logger.Warn("activation output had no frame", "ruby", path, "error", err, "stderr_len", len(out.Stderr))
		return Failed()
	}

	logger.Info("ruby environment resolved",
		"ruby", path,
		"version", payload.Version,
		"gem_paths", len(payload.GemPaths),
		"capabilities", payload.Capabilities,
	)
	return Resolved(payload)
}

// apply installs def as the current state unless a newer cycle already won,
// then publishes. Stale cycles return the prevailing state unpublished.
func (r *Resolver) apply(seq int64, cycleID string, def Definition, logger *slog.Logger) Definition {
	r.stateMu.Lock()
	if seq <= r.appliedSeq {
		current := r.current
		r.stateMu.Unlock()
		logger.Debug("discarding stale resolution cycle", "seq", seq)
		return current
	}
	r.appliedSeq = seq
	r.current = def
	r.stateMu.Unlock()

	r.bus.Publish(ChangeEvent{
		Workspace:  r.ws,
		CycleID:    cycleID,
		Definition: def,
	})
	return def
}
