package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Model is the main BubbleTea model for the watch TUI.
type Model struct {
	apiURL string
	apiKey string

	width  int
	height int

	// State
	health     HealthState
	workspaces map[string]*WorkspaceState
	eventLog   []ChangeEvent

	// Live indicator
	pulse Pulse

	// UI state
	theme          Theme
	workspaceTable table.Model

	// Communication
	changes chan ChangeEvent

	// Error display
	lastError string
}

// New creates a new watch TUI model.
func New(apiURL, apiKey string) *Model {
	return &Model{
		apiURL:         apiURL,
		apiKey:         apiKey,
		workspaces:     make(map[string]*WorkspaceState),
		eventLog:       make([]ChangeEvent, 0),
		changes:        make(chan ChangeEvent, 100),
		theme:          NewDefaultTheme(),
		workspaceTable: newWorkspaceTable(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribeToEvents(m.apiURL, m.apiKey, m.changes),
		receiveNextEvent(m.changes),
		func() tea.Msg { return fetchHealth(m.apiURL, m.apiKey) },
		func() tea.Msg { return fetchWorkspaces(m.apiURL, m.apiKey) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		default:
			var cmd tea.Cmd
			m.workspaceTable, cmd = m.workspaceTable.Update(msg)
			return m, cmd
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.pulse.Beat()
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case workspacesMsg:
		for _, snap := range msg {
			ws, ok := m.workspaces[snap.Workspace.Key]
			if !ok {
				ws = &WorkspaceState{}
				m.workspaces[snap.Workspace.Key] = ws
			}
			ws.Workspace = snap.Workspace
			ws.Definition = snap.Definition
		}
		m.workspaceTable.SetRows(workspaceRows(m.workspaces, m.theme))

	case eventMsg:
		e := ChangeEvent(msg)

		// Change log, newest first.
		m.eventLog = append([]ChangeEvent{e}, m.eventLog...)
		if len(m.eventLog) > 50 {
			m.eventLog = m.eventLog[:50]
		}

		m.pulse.MarkChange()

		ws, ok := m.workspaces[e.Workspace.Key]
		if !ok {
			ws = &WorkspaceState{}
			m.workspaces[e.Workspace.Key] = ws
		}
		ws.Workspace = e.Workspace
		ws.Definition = e.Definition
		ws.LastChange = e.At
		ws.LastCycle = e.CycleID
		m.workspaceTable.SetRows(workspaceRows(m.workspaces, m.theme))

		m.health.Connected = true
		m.lastError = ""

		return m, receiveNextEvent(m.changes)

	case healthMsg:
		m.health.Status = msg.Status
		m.health.UptimeSeconds = msg.UptimeSeconds
		m.health.Workspaces = msg.Workspaces
		m.health.Connected = true
		m.health.LastCheck = time.Now()
		m.lastError = ""

		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})

	case sseDisconnectedMsg:
		m.health.Connected = false
		m.lastError = "SSE disconnected, reconnecting..."
		// Reconnect after a short delay; the existing receiveNextEvent
		// goroutine is still waiting on the channel and will pick up
		// events from the new subscription.
		return m, tea.Tick(3*time.Second, func(t time.Time) tea.Msg {
			return reconnectMsg{}
		})

	case reconnectMsg:
		return m, subscribeToEvents(m.apiURL, m.apiKey, m.changes)

	case errMsg:
		m.lastError = msg.Error()
		// Retry health in 5s
		return m, tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
			return fetchHealth(m.apiURL, m.apiKey)
		})
	}

	return m, nil
}

func (m Model) View() string {
	if m.width == 0 {
		return "Initializing watch..."
	}

	header := renderHeader(m.health, m.pulse, m.theme, m.width)
	workspacePane := m.theme.Border.Width(m.width - 4).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.theme.Title.Render("WORKSPACES"),
			m.workspaceTable.View(),
		),
	)
	eventStream := renderEventStream(m.eventLog, m.theme, m.width)

	var errBar string
	if m.lastError != "" {
		errBar = m.theme.StatusError.Render(fmt.Sprintf(" ⚠ %s", m.lastError))
	}

	help := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Render(" [q] Quit • [↑/↓] Navigate Workspaces")

	parts := []string{header, workspacePane, eventStream}
	if errBar != "" {
		parts = append(parts, errBar)
	}
	parts = append(parts, help)

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
