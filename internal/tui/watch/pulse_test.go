package watch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPulseHeartbeatAlternates(t *testing.T) {
	var p Pulse
	first := p.Heartbeat()
	p.Beat()
	second := p.Heartbeat()
	p.Beat()

	assert.NotEqual(t, first, second)
	assert.Equal(t, first, p.Heartbeat())
}

func TestPulseBarReflectsActivity(t *testing.T) {
	theme := NewDefaultTheme()

	var quiet Pulse
	assert.Zero(t, strings.Count(quiet.Bar(theme), "●"), "no changes yet means a dark bar")
	assert.Equal(t, pulseDots, strings.Count(quiet.Bar(theme), "○"))

	var active Pulse
	active.MarkChange()
	assert.Equal(t, pulseDots, strings.Count(active.Bar(theme), "●"), "a fresh change lights the full bar")
	assert.False(t, active.LastChange().IsZero())
}
