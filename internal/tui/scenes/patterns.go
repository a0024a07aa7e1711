package scenes

import (
	"fmt"
	"strings"
	"time"

	"hostmend/internal/tui/api"
	"hostmend/internal/tui/styles"

	tea "github.com/charmbracelet/bubbletea"
)

// PatternsScene displays the registered correlation patterns and
// their firing history.
type PatternsScene struct {
	client     *api.Client
	patterns   []api.PatternStatus
	err        string
	width      int
	height     int
	loading    bool
	lastUpdate time.Time
}

// patternsMsg carries updated pattern statuses
type patternsMsg struct {
	patterns []api.PatternStatus
	err      string
}

// NewPatternsScene creates a new patterns scene
func NewPatternsScene(client *api.Client) *PatternsScene {
	return &PatternsScene{
		client:  client,
		loading: true,
	}
}

// Init initializes the patterns scene
func (p *PatternsScene) Init() tea.Cmd {
	return p.fetchPatterns()
}

func (p *PatternsScene) fetchPatterns() tea.Cmd {
	return func() tea.Msg {
		resp, err := p.client.GetPatterns()
		if err != nil {
			return patternsMsg{err: err.Error()}
		}
		return patternsMsg{patterns: resp.Patterns}
	}
}

// TickCmd returns a command that ticks every interval
func (p *PatternsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "patterns", Time: t}
	})
}

// Update handles messages for the patterns scene
func (p *PatternsScene) Update(msg tea.Msg) (*PatternsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		p.width = msg.Width
		p.height = msg.Height
		return p, nil

	case tea.KeyMsg:
		if msg.String() == "r" {
			p.loading = true
			return p, p.fetchPatterns()
		}
		return p, nil

	case patternsMsg:
		p.loading = false
		p.patterns = msg.patterns
		p.err = msg.err
		p.lastUpdate = time.Now()
		return p, nil

	case TickMsg:
		if msg.Scene == "patterns" {
			return p, p.fetchPatterns()
		}
		return p, nil
	}

	return p, nil
}

// View renders the pattern table
func (p *PatternsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Correlation Patterns"))
	b.WriteString("\n\n")

	if p.loading && len(p.patterns) == 0 {
		b.WriteString(styles.Muted.Render("  Loading patterns..."))
		return b.String()
	}

	if p.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", p.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(p.patterns) == 0 {
		b.WriteString(styles.Muted.Render("  No patterns registered."))
		return b.String()
	}

	header := fmt.Sprintf("  %-24s %-10s %-10s %-10s %-12s %s",
		"Name", "Window", "Threshold", "Cooldown", "Last Fired", "Fires")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	for _, pattern := range p.patterns {
		lastFired := "-"
		if !pattern.LastFired.IsZero() {
			lastFired = pattern.LastFired.Format("15:04:05")
		}
		row := fmt.Sprintf("  %-24s %-10s %-10d %-10s %-12s %d",
			truncate(pattern.Name, 24),
			pattern.Window,
			pattern.Threshold,
			pattern.Cooldown,
			lastFired,
			pattern.FireCount,
		)
		b.WriteString(row)
		b.WriteString("\n")
	}

	b.WriteString(styles.Muted.Render("\n  [r] Refresh"))
	if !p.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", p.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}
