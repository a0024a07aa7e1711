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

// EventsScene displays the agent's recent event buffer
type EventsScene struct {
	client     *api.Client
	events     []api.Event
	err        string
	width      int
	height     int
	cursor     int
	offset     int
	loading    bool
	maxRows    int
	lastUpdate time.Time
}

// eventsMsg carries updated events
type eventsMsg struct {
	events []api.Event
	err    string
}

// NewEventsScene creates a new events scene
func NewEventsScene(client *api.Client) *EventsScene {
	return &EventsScene{
		client:  client,
		loading: true,
		maxRows: 10,
	}
}

// Init initializes the events scene
func (e *EventsScene) Init() tea.Cmd {
	return e.fetchEvents()
}

func (e *EventsScene) fetchEvents() tea.Cmd {
	return func() tea.Msg {
		resp, err := e.client.GetEvents(100)
		if err != nil {
			return eventsMsg{err: err.Error()}
		}
		return eventsMsg{events: resp.Events}
	}
}

// TickCmd returns a command that ticks every interval
func (e *EventsScene) TickCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(t time.Time) tea.Msg {
		return TickMsg{Scene: "events", Time: t}
	})
}

// Update handles messages for the events scene
func (e *EventsScene) Update(msg tea.Msg) (*EventsScene, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		e.width = msg.Width
		e.height = msg.Height
		e.maxRows = max(5, e.height-12)
		return e, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if e.cursor > 0 {
				e.cursor--
				if e.cursor < e.offset {
					e.offset = e.cursor
				}
			}
		case "down", "j":
			if e.cursor < len(e.events)-1 {
				e.cursor++
				if e.cursor >= e.offset+e.maxRows {
					e.offset = e.cursor - e.maxRows + 1
				}
			}
		case "pgup":
			e.cursor = max(0, e.cursor-e.maxRows)
			e.offset = max(0, e.offset-e.maxRows)
		case "pgdown":
			e.cursor = min(len(e.events)-1, e.cursor+e.maxRows)
			e.offset = min(max(0, len(e.events)-e.maxRows), e.offset+e.maxRows)
		case "r":
			// Manual refresh
			e.loading = true
			return e, e.fetchEvents()
		}
		return e, nil

	case eventsMsg:
		e.loading = false
		e.events = msg.events
		e.err = msg.err
		e.lastUpdate = time.Now()
		if e.cursor >= len(e.events) {
			e.cursor = max(0, len(e.events)-1)
		}
		return e, nil

	case TickMsg:
		if msg.Scene == "events" {
			return e, e.fetchEvents()
		}
		return e, nil
	}

	return e, nil
}

// View renders the events list
func (e *EventsScene) View() string {
	var b strings.Builder

	b.WriteString(styles.Title.Render("  Recent Events"))
	b.WriteString("\n\n")

	if e.loading && len(e.events) == 0 {
		b.WriteString(styles.Muted.Render("  Loading events..."))
		return b.String()
	}

	if e.err != "" {
		b.WriteString(styles.StatusError.Render(fmt.Sprintf("  Error: %s", e.err)))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Press [r] to retry."))
		return b.String()
	}

	if len(e.events) == 0 {
		b.WriteString(styles.Muted.Render("  No events buffered."))
		b.WriteString("\n\n")
		b.WriteString(styles.Muted.Render("  Events appear here as the probes observe anomalies."))
		return b.String()
	}

	countText := fmt.Sprintf("  Showing %d events", len(e.events))
	b.WriteString(styles.Subtitle.Render(countText))
	if e.loading {
		b.WriteString(styles.Muted.Render("  (refreshing...)"))
	}
	b.WriteString("\n\n")

	header := fmt.Sprintf("  %-10s %-10s %-22s %-15s %s",
		"Time", "Severity", "Type", "Source", "Data")
	b.WriteString(styles.TableHeader.Render(header))
	b.WriteString("\n")

	endIdx := min(e.offset+e.maxRows, len(e.events))
	for i, event := range e.events[e.offset:endIdx] {
		idx := e.offset + i
		b.WriteString(e.renderEventRow(event, idx == e.cursor))
		b.WriteString("\n")
	}

	if len(e.events) > e.maxRows {
		scrollInfo := fmt.Sprintf("\n  %d-%d of %d (↑↓ to scroll, [r] refresh)",
			e.offset+1, endIdx, len(e.events))
		b.WriteString(styles.Muted.Render(scrollInfo))
	} else {
		b.WriteString(styles.Muted.Render("\n  [r] Refresh"))
	}

	if !e.lastUpdate.IsZero() {
		b.WriteString(styles.Muted.Render(fmt.Sprintf("  |  Updated: %s", e.lastUpdate.Format("15:04:05"))))
	}

	return b.String()
}

func (e *EventsScene) renderEventRow(event api.Event, selected bool) string {
	timestamp := event.Timestamp.Format("15:04:05")
	severity := e.formatSeverity(event.Severity)
	eventType := truncate(event.Type, 22)
	source := truncate(event.Source, 15)
	data := truncate(formatData(event.Data), 40)

	row := fmt.Sprintf("  %-10s %s %-22s %-15s %s", timestamp, severity, eventType, source, data)

	if selected {
		return lipgloss.NewStyle().
			Background(styles.Primary).
			Foreground(styles.White).
			Render(row)
	}

	return row
}

func (e *EventsScene) formatSeverity(sev int) string {
	width := 10
	var label string
	var style lipgloss.Style

	switch {
	case sev >= 5:
		label = "CRITICAL"
		style = styles.StatusError
	case sev >= 4:
		label = "HIGH"
		style = styles.StatusError
	case sev >= 3:
		label = "MEDIUM"
		style = styles.StatusWarning
	case sev >= 2:
		label = "LOW"
		style = styles.StatusOK
	default:
		label = "INFO"
		style = styles.Muted
	}

	padded := fmt.Sprintf("%-*s", width, label)
	return style.Render(padded)
}

func formatData(data map[string]any) string {
	if len(data) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(data))
	for k, v := range data {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
