package watch

import (
	"strings"
	"time"
)

const pulseDots = 5

// pulseStep is the decay interval: one dot goes dark per step of stream
// silence.
const pulseStep = 2 * time.Second

var heartbeatGlyphs = [...]string{"⟲", "⟳"}

// Pulse is the header's liveness readout: a heartbeat glyph that alternates
// on every poll tick, and a dot bar that lights up on change events and
// fades while the stream is quiet. Decay is computed at render time from
// the last change timestamp.
type Pulse struct {
	beats      int
	lastChange time.Time
}

// Beat advances the heartbeat. A frozen glyph means the UI stopped ticking.
func (p *Pulse) Beat() {
	p.beats++
}

// MarkChange records stream activity, relighting the full bar.
func (p *Pulse) MarkChange() {
	p.lastChange = time.Now()
}

func (p Pulse) Heartbeat() string {
	return heartbeatGlyphs[p.beats%len(heartbeatGlyphs)]
}

func (p Pulse) LastChange() time.Time {
	return p.lastChange
}

// Bar renders the activity dots: all lit immediately after a change, one
// fewer per pulseStep of silence, dark after pulseDots steps.
func (p Pulse) Bar(theme Theme) string {
	lit := 0
	if !p.lastChange.IsZero() {
		steps := int(time.Since(p.lastChange) / pulseStep)
		if steps < pulseDots {
			lit = pulseDots - steps
		}
	}

	var b strings.Builder
	for i := 0; i < pulseDots; i++ {
		if i < lit {
			b.WriteString(theme.TickerActive.Render("●"))
		} else {
			b.WriteString(theme.TickerInactive.Render("○"))
		}
	}
	return b.String()
}
