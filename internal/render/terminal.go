package render

import (
	"fmt"
	"image"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const upperHalf = "▀"

// HalfBlocks renders img as terminal rows, two pixel rows per line: the top
// pixel is the foreground of "▀" and the bottom pixel its background.
// Runs of identical cells share one style to keep the output short.
func HalfBlocks(img *image.RGBA) string {
	if img == nil {
		return ""
	}
	b := img.Bounds()
	var sb strings.Builder
	for y := b.Min.Y; y < b.Max.Y; y += 2 {
		if y > b.Min.Y {
			sb.WriteByte('\n')
		}
		var runFg, runBg string
		runLen := 0
		flush := func() {
			if runLen == 0 {
				return
			}
			style := lipgloss.NewStyle().
				Foreground(lipgloss.Color(runFg)).
				Background(lipgloss.Color(runBg))
			sb.WriteString(style.Render(strings.Repeat(upperHalf, runLen)))
			runLen = 0
		}
		for x := b.Min.X; x < b.Max.X; x++ {
			fg := hexAt(img, x, y)
			bg := fg
			if y+1 < b.Max.Y {
				bg = hexAt(img, x, y+1)
			}
			if runLen > 0 && (fg != runFg || bg != runBg) {
				flush()
			}
			runFg, runBg = fg, bg
			runLen++
		}
		flush()
	}
	return sb.String()
}

// Placeholder fills a w×rows block with a centered label.
func Placeholder(w, rows int, label string) string {
	if w <= 0 || rows <= 0 {
		return ""
	}
	return lipgloss.Place(w, rows, lipgloss.Center, lipgloss.Center, label)
}

func hexAt(img *image.RGBA, x, y int) string {
	off := img.PixOffset(x, y)
	p := img.Pix[off : off+3 : off+3]
	return fmt.Sprintf("#%02x%02x%02x", p[0], p[1], p[2])
}
