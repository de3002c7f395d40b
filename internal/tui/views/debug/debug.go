// Package debug is the viewer's event log overlay: session transitions,
// list edits and errors, newest last, optionally narrowed to errors.
package debug

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/theme"
)

const capacity = 200

// Entry kinds.
const (
	KindSession = "sess"
	KindList    = "list"
	KindError   = "err"
	KindUI      = "ui"
)

// Entry is one logged event. Stream is empty for events not tied to a stream.
type Entry struct {
	Time    time.Time
	Kind    string
	Stream  string
	Message string
}

// Model keeps the last 200 entries in a ring.
type Model struct {
	ring       [capacity]Entry
	head       int // index of the oldest entry
	n          int
	ErrorsOnly bool
	Offset     int // lines scrolled up from the newest visible entry
}

func New() Model {
	return Model{}
}

// Add logs message now. It jumps back to the newest line.
func (m *Model) Add(kind, stream, message string) {
	m.AddAt(time.Now(), kind, stream, message)
}

// AddAt is Add with an explicit timestamp, used for events that happened
// before the UI drained them.
func (m *Model) AddAt(at time.Time, kind, stream, message string) {
	e := Entry{Time: at, Kind: kind, Stream: stream, Message: message}
	if m.n < capacity {
		m.ring[(m.head+m.n)%capacity] = e
		m.n++
	} else {
		m.ring[m.head] = e
		m.head = (m.head + 1) % capacity
	}
	m.Offset = 0
}

// Len reports how many entries are held.
func (m Model) Len() int { return m.n }

// Entries returns the held entries oldest first.
func (m Model) Entries() []Entry {
	out := make([]Entry, m.n)
	for i := range out {
		out[i] = m.ring[(m.head+i)%capacity]
	}
	return out
}

func (m Model) visible() []Entry {
	all := m.Entries()
	if !m.ErrorsOnly {
		return all
	}
	out := all[:0]
	for _, e := range all {
		if e.Kind == KindError {
			out = append(out, e)
		}
	}
	return out
}

// ToggleErrors switches between all entries and errors only.
func (m *Model) ToggleErrors() {
	m.ErrorsOnly = !m.ErrorsOnly
	m.Offset = 0
}

func (m *Model) ScrollUp(n int) {
	m.Offset = min(m.Offset+n, max(len(m.visible())-1, 0))
}

func (m *Model) ScrollDown(n int) {
	m.Offset = max(m.Offset-n, 0)
}

// errorSummary names the streams with logged errors, most errors first.
func (m Model) errorSummary() string {
	counts := map[string]int{}
	for _, e := range m.Entries() {
		if e.Kind == KindError && e.Stream != "" {
			counts[e.Stream]++
		}
	}
	if len(counts) == 0 {
		return ""
	}
	names := make([]string, 0, len(counts))
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = fmt.Sprintf("%s×%d", name, counts[name])
	}
	return "errors: " + strings.Join(parts, " ")
}

// View renders the log as a bordered overlay filling width x height.
func (m Model) View(width, height int) string {
	innerW := max(width-4, 20)
	rows := max(height-8, 3)

	filter := "all"
	if m.ErrorsOnly {
		filter = "errors"
	}
	title := theme.StyleHeader.Render(" EVENT LOG ") + theme.StyleDimmed.Render(" "+filter)
	help := theme.StyleDimmed.Render(fmt.Sprintf("j/k:scroll  e:errors only  esc:close  %d entries", m.n))

	entries := m.visible()
	var body string
	if len(entries) == 0 {
		body = theme.StyleDimmed.Render("  No events recorded yet.")
	} else {
		end := max(len(entries)-m.Offset, 0)
		start := max(end-rows, 0)
		streamW := 0
		for _, e := range entries[start:end] {
			streamW = max(streamW, lipgloss.Width(e.Stream))
		}
		streamW = min(streamW, innerW/4)

		lines := make([]string, 0, end-start)
		for _, e := range entries[start:end] {
			lines = append(lines, m.line(e, innerW, streamW))
		}
		body = strings.Join(lines, "\n")
	}

	parts := []string{title}
	if s := m.errorSummary(); s != "" {
		parts = append(parts, theme.StyleError.Render(truncate(s, innerW)))
	}
	parts = append(parts, "", body)
	if m.Offset > 0 {
		parts = append(parts, theme.StyleDimmed.Render(fmt.Sprintf(" ↓ %d newer", m.Offset)))
	}
	parts = append(parts, "", help)

	return lipgloss.NewStyle().
		Width(innerW).
		Padding(1, 2).
		BorderStyle(lipgloss.DoubleBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) line(e Entry, width, streamW int) string {
	ts := theme.StyleDimmed.Render(e.Time.Format("15:04:05.000"))
	kind := lipgloss.NewStyle().Foreground(kindColor(e.Kind)).Width(4).Render(e.Kind)
	prefix := ts + " " + kind + " "
	if streamW > 0 {
		prefix += lipgloss.NewStyle().Bold(true).Width(streamW).Render(truncate(e.Stream, streamW)) + " "
	}
	return prefix + truncate(e.Message, max(width-lipgloss.Width(prefix), 8))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

func kindColor(kind string) lipgloss.Color {
	switch kind {
	case KindSession:
		return theme.ColorAccent
	case KindError:
		return theme.ColorDanger
	case KindList:
		return theme.ColorOpen
	case KindUI:
		return theme.ColorConnecting
	default:
		return theme.ColorDimmed
	}
}
