package status

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/session"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/theme"
)

// Model holds the status bar state.
type Model struct {
	Endpoint   string
	User       string
	Live       int
	Connecting int
	Down       int
	Paused     int
	Width      int
}

// New creates a status bar model.
func New(endpoint string) Model {
	return Model{Endpoint: endpoint}
}

// SetCounts tallies sessions by what the user sees on their tiles.
func (m *Model) SetCounts(statuses []session.Status) {
	m.Live, m.Connecting, m.Down, m.Paused = 0, 0, 0, 0
	for _, st := range statuses {
		switch {
		case !st.Playing:
			m.Paused++
		case st.State == session.Open:
			m.Live++
		case st.State == session.Connecting:
			m.Connecting++
		default:
			m.Down++
		}
	}
}

// View renders the status bar.
func (m Model) View() string {
	width := m.Width
	if width < 40 {
		width = 40
	}

	title := theme.StyleHeader.Render("RTSP Stream Viewer")
	counts := lipgloss.NewStyle().Foreground(theme.ColorOpen).Render(fmt.Sprintf("%d live", m.Live)) + "  " +
		lipgloss.NewStyle().Foreground(theme.ColorConnecting).Render(fmt.Sprintf("%d connecting", m.Connecting)) + "  " +
		lipgloss.NewStyle().Foreground(theme.ColorClosed).Render(fmt.Sprintf("%d down", m.Down)) + "  " +
		theme.StyleDimmed.Render(fmt.Sprintf("%d paused", m.Paused))

	sep := lipgloss.NewStyle().Foreground(theme.ColorBorder).Render(" | ")
	content := title + sep + counts + sep + theme.StyleDimmed.Render(m.Endpoint)
	if m.User != "" {
		content += sep + theme.StyleDimmed.Render(m.User)
	}

	return lipgloss.NewStyle().
		Width(width).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(content)
}
