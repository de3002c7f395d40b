// Package help renders the key reference overlay from Markdown.
package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/theme"
)

const intro = `# RTSP Stream Viewer

Each tile shows one stream. A playing stream connects to the frame server,
shows a spinner until its first frame arrives and reconnects on its own when
the connection drops. Pausing closes the connection and keeps the last frame.
`

// Markdown builds the help document for the given key groups.
func Markdown(groups [][]key.Binding) string {
	var sb strings.Builder
	sb.WriteString(intro)
	sb.WriteString("\n## Keys\n\n| key | action |\n|-----|--------|\n")
	for _, group := range groups {
		for _, b := range group {
			h := b.Help()
			if h.Key == "" {
				continue
			}
			fmt.Fprintf(&sb, "| `%s` | %s |\n", h.Key, h.Desc)
		}
	}
	return sb.String()
}

// Model caches the rendered document per width.
type Model struct {
	groups   [][]key.Binding
	width    int
	rendered string
}

func New(groups [][]key.Binding) Model {
	return Model{groups: groups}
}

// View renders the overlay at width.
func (m *Model) View(width, height int) string {
	inner := max(width-8, 30)
	if m.rendered == "" || m.width != inner {
		m.width = inner
		m.rendered = m.render(inner)
	}
	panel := lipgloss.NewStyle().
		Width(inner+4).
		Padding(0, 1).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(m.rendered + "\n" + theme.StyleDimmed.Render("esc:close"))
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Top, panel)
}

func (m *Model) render(width int) string {
	md := Markdown(m.groups)
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
