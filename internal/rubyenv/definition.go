package rubyenv

import (
	"fmt"

	"github.com/rubyenvd/rubyenvd/internal/wire"
)

// Kind tags a Definition. The three states are mutually exclusive:
// Unresolved means no probe was attempted (or no executable is configured),
// Error means a probe was attempted and failed, Resolved carries data.
type Kind int

const (
	KindUnresolved Kind = iota
	KindError
	KindResolved
)

func (k Kind) String() string {
	switch k {
	case KindUnresolved:
		return "unresolved"
	case KindError:
		return "error"
	case KindResolved:
		return "resolved"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// MarshalJSON renders the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

// UnmarshalJSON accepts the names produced by MarshalJSON.
func (k *Kind) UnmarshalJSON(data []byte) error {
	switch string(data) {
	case `"unresolved"`:
		*k = KindUnresolved
	case `"error"`:
		*k = KindError
	case `"resolved"`:
		*k = KindResolved
	default:
		return fmt.Errorf("unknown definition kind %s", data)
	}
	return nil
}

// Definition is the tagged result of one resolution cycle. Immutable once
// constructed; each cycle builds a fresh value.
type Definition struct {
	Kind Kind `json:"kind"`

	// The fields below are populated only for KindResolved.
	Version      string            `json:"version,omitempty"`
	GemPaths     []string          `json:"gem_paths,omitempty"`
	Capabilities []wire.Capability `json:"capabilities,omitempty"`
	Env          map[string]string `json:"env,omitempty"`
}

// Unresolved is the state before any probe, or when no executable is
// configured. Distinct from Failed: it is not a failure.
func Unresolved() Definition {
	return Definition{Kind: KindUnresolved}
}

// Failed marks a probe that was attempted and did not produce a usable
// result. It carries no further data.
func Failed() Definition {
	return Definition{Kind: KindError}
}

// Resolved builds a success Definition from a decoded activation payload.
func Resolved(p wire.Payload) Definition {
	return Definition{
		Kind:         KindResolved,
		Version:      p.Version,
		GemPaths:     p.GemPaths,
		Capabilities: p.Capabilities,
		Env:          p.Env,
	}
}

// HasCapability reports whether the definition carries the given JIT tag.
func (d Definition) HasCapability(c wire.Capability) bool {
	for _, have := range d.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// ChangeEvent is published on the notification bus whenever a resolution
// cycle completes for a workspace.
type ChangeEvent struct {
	Workspace  WorkspaceContext `json:"workspace"`
	CycleID    string           `json:"cycle_id"`
	Definition Definition       `json:"definition"`
}
