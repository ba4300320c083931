package watch

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/rubyenvd/rubyenvd/internal/rubyenv"
	"github.com/rubyenvd/rubyenvd/internal/wire"
)

// WorkspaceState tracks one workspace as seen through the event stream.
type WorkspaceState struct {
	Workspace  rubyenv.WorkspaceContext
	Definition rubyenv.Definition
	LastChange time.Time
	LastCycle  string
}

func newWorkspaceTable() table.Model {
	t := table.New(
		table.WithColumns([]table.Column{
			{Title: "ST", Width: 2},
			{Title: "Workspace", Width: 24},
			{Title: "Ruby", Width: 10},
			{Title: "JIT", Width: 10},
			{Title: "Gems", Width: 5},
			{Title: "Changed", Width: 12},
		}),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("88")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func workspaceRows(workspaces map[string]*WorkspaceState, theme Theme) []table.Row {
	keys := make([]string, 0, len(workspaces))
	for k := range workspaces {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return workspaces[keys[i]].Workspace.Name < workspaces[keys[j]].Workspace.Name
	})

	rows := make([]table.Row, 0, len(keys))
	for _, k := range keys {
		rows = append(rows, workspaceRow(workspaces[k], theme))
	}
	return rows
}

func workspaceRow(ws *WorkspaceState, theme Theme) table.Row {
	var statusSym string
	switch ws.Definition.Kind {
	case rubyenv.KindResolved:
		statusSym = theme.StatusResolved.Render("●")
	case rubyenv.KindError:
		statusSym = theme.StatusError.Render("∅")
	default:
		statusSym = theme.StatusUnresolved.Render("○")
	}

	version := "-"
	if ws.Definition.Kind == rubyenv.KindResolved {
		version = ws.Definition.Version
	}

	changed := "-"
	if !ws.LastChange.IsZero() {
		changed = fmt.Sprintf("%s ago", time.Since(ws.LastChange).Round(time.Second))
	}

	return table.Row{
		statusSym,
		ws.Workspace.Name,
		version,
		jitColumn(ws.Definition),
		fmt.Sprintf("%d", len(ws.Definition.GemPaths)),
		changed,
	}
}

func jitColumn(def rubyenv.Definition) string {
	if def.Kind != rubyenv.KindResolved {
		return "-"
	}
	var tags []string
	if def.HasCapability(wire.CapYJIT) {
		tags = append(tags, "yjit")
	}
	if def.HasCapability(wire.CapZJIT) {
		tags = append(tags, "zjit")
	}
	if len(tags) == 0 {
		return "none"
	}
	return strings.Join(tags, ",")
}
