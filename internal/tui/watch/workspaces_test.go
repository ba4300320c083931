package watch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
	"github.com/rubyenvd/rubyenvd/internal/wire"
)

func TestJITColumn(t *testing.T) {
	assert.Equal(t, "-", jitColumn(rubyenv.Unresolved()))
	assert.Equal(t, "none", jitColumn(rubyenv.Resolved(wire.Payload{Version: "3.0.0"})))
	assert.Equal(t, "yjit", jitColumn(rubyenv.Resolved(wire.Payload{
		Version:      "3.3.4",
		Capabilities: []wire.Capability{wire.CapYJIT},
	})))
	assert.Equal(t, "yjit,zjit", jitColumn(rubyenv.Resolved(wire.Payload{
		Version:      "3.5.0",
		Capabilities: []wire.Capability{wire.CapYJIT, wire.CapZJIT},
	})))
}

func TestWorkspaceRowStates(t *testing.T) {
	theme := NewDefaultTheme()

	resolved := workspaceRow(&WorkspaceState{
		Workspace: rubyenv.WorkspaceContext{Name: "app-a"},
		Definition: rubyenv.Resolved(wire.Payload{
			Version:  "3.3.4",
			GemPaths: []string{"/a", "/b"},
		}),
		LastChange: time.Now(),
	}, theme)
	assert.Equal(t, "app-a", resolved[1])
	assert.Equal(t, "3.3.4", resolved[2])
	assert.Equal(t, "2", resolved[4])

	unresolved := workspaceRow(&WorkspaceState{
		Workspace:  rubyenv.WorkspaceContext{Name: "app-b"},
		Definition: rubyenv.Unresolved(),
	}, theme)
	assert.Equal(t, "-", unresolved[2])
	assert.Equal(t, "-", unresolved[5])
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "42s", formatDuration(42*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(125*time.Second))
	assert.Equal(t, "1h 30m", formatDuration(90*time.Minute))
}
