// Package scenes provides the TUI scenes for the hostmend monitor.
package scenes

import (
	"fmt"
	"strings"
	"time"

	"hostmend/internal/tui/api"
	"hostmend/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TickMsg is sent on each refresh tick - exported for use by the
// parent model.
type TickMsg struct {
	Scene string
	Time  time.Time
}

// StatusScene displays the agent overview: health, buffer counters,
// and probe/pattern summaries.
type StatusScene struct {
	client     *api.Client
	status     *api.Status
	err        error
	scanNote   string
	width      int
	height     int
	lastUpdate time.Time
	loading    bool
}

// statusMsg carries updated status
type statusMsg struct {
	status *api.Status
	err    error
}

// scanMsg carries the result of a manual scan
type scanMsg struct {
	scan *api.ScanResponse
	err  error
}

// NewStatusScene creates a new status scene
func NewStatusScene(client *api.Client) *StatusScene {
	return &StatusScene{
		client:  client,
		loading: true,
	}
}

// Init initializes the status scene - fetches initial data
func (s *StatusScene) Init() tea.Cmd {
	return s.fetchStatus()
}

func (s *StatusScene) fetchStatus() tea.Cmd {
	return func() tea.Msg {
		status, err := s.client.GetStatus()
		return statusMsg{status: status, err: err}
	}
}

func (s *StatusScene) triggerScan() tea.Cmd {
	return func() tea.Msg {
		scan, err := s.client.TriggerScan()
		return scanMsg{scan: scan, err: err}
	}
}

// TickCmd returns a command that ticks every interval
// IMPORTANT: This is returned by the parent model only when this scene is active
func (s *StatusScene) TickCmd() tea.Cmd {
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "status", Time: t}
	})
}

// Update handles messages for the status scene
func (s *StatusScene) Update(msg tea.Msg) (*StatusScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.width = msg.Width
		s.height = msg.Height
		return s, nil

	case tea.KeyMsg:
		if msg.String() == "s" {
			s.scanNote = "Scanning..."
			return s, s.triggerScan()
		}
		return s, nil

	case statusMsg:
		s.loading = false
		s.status = msg.status
		s.err = msg.err
		s.lastUpdate = time.Now()
		return s, nil

	case scanMsg:
		if msg.err != nil {
			s.scanNote = fmt.Sprintf("Scan failed: %v", msg.err)
		} else {
			s.scanNote = fmt.Sprintf("Scan complete: %d probe(s), %d firing(s)",
				len(msg.scan.Probes), len(msg.scan.Firings))
		}
		// Refresh right away so the scan's events show up.
		return s, s.fetchStatus()

	case TickMsg:
		if msg.Scene == "status" {
			return s, s.fetchStatus()
		}
		return s, nil
	}

	return s, nil
}

// View renders the status scene
func (s *StatusScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  hostmend Agent"))
	b.WriteString("\n\n")

	if s.loading {
		b.WriteString(styles.Muted.Render("Loading..."))
		return b.String()
	}

	if s.err != nil {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %v", s.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Make sure the agent is running and reachable."))
		return b.String()
	}

	b.WriteString(fmt.Sprintf("  Status: %s   Version: %s   Uptime: %s\n\n",
		styles.StatusOK.Render("● RUNNING"), s.status.Version, s.status.Uptime))

	cards := []string{
		s.renderMetricCard("Buffered", fmt.Sprintf("%d/%d", s.status.Buffer.Retained, s.status.Buffer.Capacity)),
		s.renderMetricCard("Inserted", fmt.Sprintf("%d", s.status.Buffer.Inserted)),
		s.renderMetricCard("Evicted", fmt.Sprintf("%d", s.status.Buffer.Evicted)),
		s.renderMetricCard("Patterns", fmt.Sprintf("%d", len(s.status.Patterns))),
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, cards...))
	b.WriteString("\n\n")

	b.WriteString(styles.Subtitle.Render("  Active Probes"))
	b.WriteString("\n")
	for _, probe := range s.status.Probes {
		b.WriteString(fmt.Sprintf("  %s %s\n", styles.StatusOK.Render("●"), probe))
	}
	b.WriteString("\n")

	if s.scanNote != "" {
		b.WriteString(styles.StatusWarning.Render("  " + s.scanNote))
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render("  [s] Force scan"))
	if !s.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", s.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (s *StatusScene) renderMetricCard(label, value string) string {
	card := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.MutedColor).
		Padding(0, 2).
		Width(16).
		Align(lipgloss.Center)

	content := fmt.Sprintf("%s\n%s",
		styles.MetricValue.Render(value),
		styles.MetricLabel.Render(label),
	)

	return card.Render(content)
}
