// Package grid lays stream tiles out in columns and draws each one: a header
// with the stream name and its Play/Pause label, the picture (or a spinner
// while loading), and a state footer.
package grid

import (
	"image"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/harmonica"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/render"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/session"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/theme"
)

const (
	DefaultMaxColumns = 3
	minTileWidth      = 8
	animFPS           = 60
)

// EmptyMessage is shown when there are no streams.
const EmptyMessage = "No streams added yet"

// Columns is min(ceil(sqrt(n)), maxCols).
func Columns(n, maxCols int) int {
	if n <= 0 {
		return 0
	}
	if maxCols <= 0 {
		maxCols = DefaultMaxColumns
	}
	return min(int(math.Ceil(math.Sqrt(float64(n)))), maxCols)
}

// TileWidth is the picture width in cells of one tile when termWidth is split
// into cols columns. One cell is one pixel wide.
func TileWidth(termWidth, cols int) int {
	if cols <= 0 {
		return 0
	}
	// Two cells of border per tile.
	return max(termWidth/cols-2, minTileWidth)
}

// Tile is what one stream shows.
type Tile struct {
	Status session.Status
	Image  *image.RGBA
}

// AnimMsg advances the selection highlight.
type AnimMsg struct{}

func animate() tea.Cmd {
	return tea.Tick(time.Second/animFPS, func(time.Time) tea.Msg { return AnimMsg{} })
}

// Model holds layout and selection.
type Model struct {
	Width      int
	MaxColumns int
	Selected   int
	Fullscreen bool
	Spinner    string // current spinner frame for loading tiles

	spring harmonica.Spring
	glow   float64 // 0 just selected, 1 settled
	vel    float64
}

func New(maxCols int) Model {
	if maxCols <= 0 {
		maxCols = DefaultMaxColumns
	}
	return Model{
		MaxColumns: maxCols,
		spring:     harmonica.NewSpring(harmonica.FPS(animFPS), 6.0, 0.4),
		glow:       1,
	}
}

// Columns returns the column count for n tiles in the current mode.
func (m Model) Columns(n int) int {
	if m.Fullscreen && n > 0 {
		return 1
	}
	return Columns(n, m.MaxColumns)
}

// TileWidth returns the picture width for n tiles in the current mode.
func (m Model) TileWidth(n int) int {
	return TileWidth(m.Width, m.Columns(n))
}

// Select moves the selection to i (clamped to n tiles) and starts the
// highlight animation when it changed.
func (m *Model) Select(i, n int) tea.Cmd {
	if n <= 0 {
		m.Selected = 0
		return nil
	}
	i = min(max(i, 0), n-1)
	if i == m.Selected {
		return nil
	}
	m.Selected = i
	m.glow, m.vel = 0, 0
	return animate()
}

// Move shifts the selection by dx tiles or dy rows.
func (m *Model) Move(dx, dy, n int) tea.Cmd {
	cols := max(m.Columns(n), 1)
	return m.Select(m.Selected+dx+dy*cols, n)
}

// Step advances the highlight spring; it returns nil once settled.
func (m *Model) Step() tea.Cmd {
	m.glow, m.vel = m.spring.Update(m.glow, m.vel, 1)
	if math.Abs(1-m.glow) < 0.01 && math.Abs(m.vel) < 0.01 {
		m.glow, m.vel = 1, 0
		return nil
	}
	return animate()
}

// Glow reports the highlight progress of the selected tile.
func (m Model) Glow() float64 { return m.glow }

// View renders the tiles.
func (m Model) View(tiles []Tile) string {
	if len(tiles) == 0 {
		return lipgloss.Place(max(m.Width, len(EmptyMessage)), 5, lipgloss.Center, lipgloss.Center,
			theme.StyleDimmed.Render(EmptyMessage))
	}
	w := m.TileWidth(len(tiles))

	if m.Fullscreen {
		sel := min(m.Selected, len(tiles)-1)
		return m.tile(tiles[sel], w, true)
	}

	cols := m.Columns(len(tiles))
	var rows []string
	for start := 0; start < len(tiles); start += cols {
		end := min(start+cols, len(tiles))
		cells := make([]string, 0, end-start)
		for i := start; i < end; i++ {
			cells = append(cells, m.tile(tiles[i], w, i == m.Selected))
		}
		rows = append(rows, lipgloss.JoinHorizontal(lipgloss.Top, cells...))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m Model) tile(t Tile, w int, selected bool) string {
	st := t.Status
	aspect := st.AspectRatio
	if aspect <= 0 {
		aspect = render.DefaultAspect
	}
	rows := (render.CanvasHeight(w, aspect) + 1) / 2

	var body string
	switch {
	case st.Playing && st.Loading:
		body = render.Placeholder(w, rows, m.Spinner+" Loading...")
	case t.Image != nil:
		body = render.HalfBlocks(t.Image)
	case !st.Playing:
		body = render.Placeholder(w, rows, theme.StyleDimmed.Render("Paused"))
	default:
		body = render.Placeholder(w, rows, theme.StyleDimmed.Render("No signal"))
	}

	border := theme.ColorBorder
	if selected {
		border = theme.Blend(theme.ColorBorder, theme.ColorSelected, m.glow)
	}
	content := lipgloss.JoinVertical(lipgloss.Left, header(st, w), body, footer(st, w))
	return lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(border).
		Width(w).
		Render(content)
}

func header(st session.Status, w int) string {
	label := "[Play]"
	if st.Playing {
		label = "[Pause]"
	}
	state := st.State.String()
	glyph := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(theme.StateGlyph(state))
	name := truncate(st.Name, w-len(label)-3)
	left := glyph + " " + theme.StyleHeader.Render(name)
	gap := max(w-lipgloss.Width(left)-len(label), 1)
	return left + strings.Repeat(" ", gap) + theme.StyleDimmed.Render(label)
}

func footer(st session.Status, w int) string {
	state := st.State.String()
	text := lipgloss.NewStyle().Foreground(theme.StateColor(state)).Render(state)
	if st.LastError != "" {
		return text + " " + theme.StyleError.Render(truncate(st.LastError, w-len(state)-1))
	}
	return text
}

func truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
