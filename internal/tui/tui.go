// Package tui provides a terminal monitor for a running hostmend agent
package tui

import (
	"fmt"
	"strings"

	"hostmend/internal/tui/api"
	"hostmend/internal/tui/scenes"
	"hostmend/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Scene represents the current view
type Scene int

const (
	SceneStatus Scene = iota
	SceneEvents
	ScenePatterns
)

// Model is the main TUI model
type Model struct {
	client *api.Client

	// Current scene
	scene Scene

	// Scene models - only the active one receives updates
	status   *scenes.StatusScene
	events   *scenes.EventsScene
	patterns *scenes.PatternsScene

	// Window dimensions
	width  int
	height int

	// Whether we're quitting
	quitting bool
}

// New creates a new TUI model
func New(baseURL string) *Model {
	client := api.NewClient(baseURL)

	return &Model{
		client:   client,
		scene:    SceneStatus,
		status:   scenes.NewStatusScene(client),
		events:   scenes.NewEventsScene(client),
		patterns: scenes.NewPatternsScene(client),
	}
}

// Init initializes the TUI
func (m *Model) Init() tea.Cmd {
	// Only initialize the current scene's data fetch
	// This prevents multiple tickers from running at startup
	return tea.Batch(
		m.status.Init(),
		m.getActiveSceneTickCmd(),
	)
}

// getActiveSceneTickCmd returns the tick command for the active scene only
// This is critical for performance - we don't want inactive scenes ticking
func (m *Model) getActiveSceneTickCmd() tea.Cmd {
	switch m.scene {
	case SceneStatus:
		return m.status.TickCmd()
	case SceneEvents:
		return m.events.TickCmd()
	case ScenePatterns:
		return m.patterns.TickCmd()
	default:
		return nil
	}
}

// Update handles all messages
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		// Tab switching - number keys
		case "1":
			if m.scene != SceneStatus {
				m.scene = SceneStatus
				cmds = append(cmds, m.status.Init(), m.status.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "2":
			if m.scene != SceneEvents {
				m.scene = SceneEvents
				cmds = append(cmds, m.events.Init(), m.events.TickCmd())
			}
			return m, tea.Batch(cmds...)

		case "3":
			if m.scene != ScenePatterns {
				m.scene = ScenePatterns
				cmds = append(cmds, m.patterns.Init(), m.patterns.TickCmd())
			}
			return m, tea.Batch(cmds...)

		// Tab key cycles through scenes
		case "tab":
			m.scene = (m.scene + 1) % 3 // 3 scenes
			cmds = append(cmds, m.getActiveSceneTickCmd())
			return m, tea.Batch(cmds...)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Pass to all scenes so they can adjust
		m.status, _ = m.status.Update(msg)
		m.events, _ = m.events.Update(msg)
		m.patterns, _ = m.patterns.Update(msg)
		return m, nil

	case scenes.TickMsg:
		// Only forward tick to the active scene
		// This prevents inactive scenes from doing work
		var cmd tea.Cmd
		switch m.scene {
		case SceneStatus:
			m.status, cmd = m.status.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.status.TickCmd())
		case SceneEvents:
			m.events, cmd = m.events.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.events.TickCmd())
		case ScenePatterns:
			m.patterns, cmd = m.patterns.Update(msg)
			if cmd != nil {
				cmds = append(cmds, cmd)
			}
			cmds = append(cmds, m.patterns.TickCmd())
		}
		return m, tea.Batch(cmds...)
	}

	// Forward other messages to active scene only
	var cmd tea.Cmd
	switch m.scene {
	case SceneStatus:
		m.status, cmd = m.status.Update(msg)
	case SceneEvents:
		m.events, cmd = m.events.Update(msg)
	case ScenePatterns:
		m.patterns, cmd = m.patterns.Update(msg)
	}

	if cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// View renders the current view
func (m *Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n")

	switch m.scene {
	case SceneStatus:
		b.WriteString(m.status.View())
	case SceneEvents:
		b.WriteString(m.events.View())
	case ScenePatterns:
		b.WriteString(m.patterns.View())
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())

	return b.String()
}

func (m *Model) renderHeader() string {
	tabs := []struct {
		name  string
		key   string
		scene Scene
	}{
		{"Status", "1", SceneStatus},
		{"Events", "2", SceneEvents},
		{"Patterns", "3", ScenePatterns},
	}

	var tabViews []string
	for _, tab := range tabs {
		label := fmt.Sprintf(" %s %s ", tab.key, tab.name)
		if tab.scene == m.scene {
			tabViews = append(tabViews, styles.TabActive.Render(label))
		} else {
			tabViews = append(tabViews, styles.TabInactive.Render(label))
		}
	}

	tabBar := lipgloss.JoinHorizontal(lipgloss.Top, tabViews...)

	header := lipgloss.NewStyle().
		BorderBottom(true).
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.MutedColor).
		Width(m.width).
		Render(tabBar)

	return header
}

func (m *Model) renderFooter() string {
	help := " [1-3] Switch tabs  [Tab] Next tab  [↑↓/jk] Navigate  [s] Scan  [q] Quit "
	return styles.Help.Render(help)
}

// Run starts the TUI application
func Run(baseURL string) error {
	m := New(baseURL)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
