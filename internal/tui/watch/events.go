package watch

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
)

func renderEventStream(eventLog []ChangeEvent, theme Theme, width int) string {
	innerWidth := width - 4

	if len(eventLog) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("CHANGE STREAM"),
			theme.Dim.Render("  Waiting for changes..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range eventLog {
		if i >= 10 {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	eventsText := lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n"))
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("CHANGE STREAM"),
		eventsText,
	)

	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e ChangeEvent, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var kindStyle lipgloss.Style
	switch e.Definition.Kind {
	case rubyenv.KindResolved:
		kindStyle = theme.StatusResolved
	case rubyenv.KindError:
		kindStyle = theme.StatusError
	default:
		kindStyle = theme.StatusUnresolved
	}
	kind := kindStyle.Render(fmt.Sprintf("%-10s", e.Definition.Kind))

	cycle := e.CycleID
	if len(cycle) > 8 {
		cycle = cycle[:8]
	}

	desc := e.Workspace.Name
	if e.Definition.Kind == rubyenv.KindResolved {
		desc = fmt.Sprintf("%s ruby %s", desc, e.Definition.Version)
	}

	return fmt.Sprintf("%s %s [%s] %s", ts, kind, cycle, desc)
}
