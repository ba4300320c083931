package manager

import (
	"context"
	"errors"
	"fmt"

	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
	"github.com/rubyenvd/rubyenvd/internal/store"
)

// OverrideGetter reads persisted manual path selections.
type OverrideGetter interface {
	Get(ctx context.Context, key string) (string, error)
}

// ConfiguredPath is the "configured path" strategy: a per-workspace manual
// override wins, then the general ruby.path setting. When neither is set the
// workspace stays unresolved.
type ConfiguredPath struct {
	overrides OverrideGetter
	fallback  string
}

var _ rubyenv.Strategy = (*ConfiguredPath)(nil)

// NewConfiguredPath creates the strategy. fallback is the general setting's
// value and may be empty.
func NewConfiguredPath(overrides OverrideGetter, fallback string) *ConfiguredPath {
	return &ConfiguredPath{overrides: overrides, fallback: fallback}
}

func (s *ConfiguredPath) ID() string {
	return string(IDConfigured)
}

// ExecutablePath resolves the path to probe for ws. An absent override and
// an empty fallback yield ok=false, not an error.
func (s *ConfiguredPath) ExecutablePath(ctx context.Context, ws rubyenv.WorkspaceContext) (string, bool, error) {
	v, err := s.overrides.Get(ctx, ws.OverrideKey())
	switch {
	case err == nil && v != "":
		return v, true, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return "", false, fmt.Errorf("read manual path override: %w", err)
	}

	if s.fallback != "" {
		return s.fallback, true, nil
	}
	return "", false, nil
}

// ForID returns the strategy for a validated manager ID. Only IDConfigured
// is implemented; the remaining IDs are reserved extension points.
func ForID(id ID, overrides OverrideGetter, fallback string) (rubyenv.Strategy, error) {
	switch id {
	case IDConfigured:
		return NewConfiguredPath(overrides, fallback), nil
	case IDRbenv, IDRvm, IDChruby, IDAsdf, IDShadowenv:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, id)
	default:
		return nil, fmt.Errorf("unknown version manager %q", id)
	}
}
