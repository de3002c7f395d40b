// Package theme provides the Lip Gloss color palette and reusable styles
// for the viewer TUI. It is a leaf package with no internal imports to
// avoid import cycles.
package theme

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
)

// Connection state colors.
var (
	ColorIdle       = lipgloss.Color("#4b5563")
	ColorConnecting = lipgloss.Color("#d97706")
	ColorOpen       = lipgloss.Color("#16a34a")
	ColorClosed     = lipgloss.Color("#dc2626")
)

// UI chrome colors.
var (
	ColorBorder   = lipgloss.Color("#4b5563")
	ColorSelected = lipgloss.Color("#67e8f9")
	ColorDimmed   = lipgloss.Color("#6b7280")
	ColorBright   = lipgloss.Color("#f9fafb")
	ColorBg       = lipgloss.Color("#111827")
	ColorAccent   = lipgloss.Color("#3b82f6")
	ColorHealthy  = lipgloss.Color("#22c55e")
	ColorWarning  = lipgloss.Color("#d97706")
	ColorDanger   = lipgloss.Color("#dc2626")
	ColorDefault  = lipgloss.Color("#9ca3af")
)

// StateColor returns the color for a session state name.
func StateColor(state string) lipgloss.Color {
	switch state {
	case "idle":
		return ColorIdle
	case "connecting":
		return ColorConnecting
	case "open":
		return ColorOpen
	case "closed":
		return ColorClosed
	default:
		return ColorDefault
	}
}

// StateGlyph returns a Unicode glyph representing a session state.
func StateGlyph(state string) string {
	switch state {
	case "idle":
		return "○"
	case "connecting":
		return "◌"
	case "open":
		return "●"
	case "closed":
		return "✗"
	default:
		return "·"
	}
}

// Blend mixes two #rrggbb colors; t=0 gives a, t=1 gives b.
func Blend(a, b lipgloss.Color, t float64) lipgloss.Color {
	t = min(max(t, 0), 1)
	ar, ag, ab := rgb(string(a))
	br, bg, bb := rgb(string(b))
	mix := func(x, y int) int { return x + int(float64(y-x)*t+0.5) }
	return lipgloss.Color(fmt.Sprintf("#%02x%02x%02x", mix(ar, br), mix(ag, bg), mix(ab, bb)))
}

func rgb(hex string) (int, int, int) {
	if len(hex) != 7 || hex[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(hex[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(uint8(v >> 16)), int(uint8(v >> 8)), int(uint8(v))
}

// Reusable styles.
var (
	StyleBorder = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder)

	StyleHeader = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleDimmed = lipgloss.NewStyle().
		Foreground(ColorDimmed)

	StyleSelected = lipgloss.NewStyle().
		Bold(true).
		Foreground(ColorBright)

	StyleError = lipgloss.NewStyle().
		Foreground(ColorDanger)
)
