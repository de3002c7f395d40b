// Package form is a small multi-field text form shared by the login and
// add-stream overlays.
package form

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/theme"
)

// Action is what a key press did to the form as a whole.
type Action int

const (
	None Action = iota
	Submit
	Cancel
)

// Field describes one input.
type Field struct {
	Label       string
	Placeholder string
	Secret      bool
	Limit       int
}

var (
	keyNext   = key.NewBinding(key.WithKeys("tab", "down"))
	keyPrev   = key.NewBinding(key.WithKeys("shift+tab", "up"))
	keyEnter  = key.NewBinding(key.WithKeys("enter"))
	keyCancel = key.NewBinding(key.WithKeys("esc"))
)

type Model struct {
	Title string
	Hint  string
	Err   string
	Width int

	labels []string
	inputs []textinput.Model
	focus  int
}

func New(title string, fields ...Field) Model {
	m := Model{Title: title, Width: 48}
	for _, f := range fields {
		in := textinput.New()
		in.Placeholder = f.Placeholder
		in.Prompt = ""
		in.CharLimit = f.Limit
		if f.Secret {
			in.EchoMode = textinput.EchoPassword
			in.EchoCharacter = '•'
		}
		m.labels = append(m.labels, f.Label)
		m.inputs = append(m.inputs, in)
	}
	return m
}

// Focus focuses the first field.
func (m *Model) Focus() tea.Cmd {
	return m.focusField(0)
}

func (m *Model) focusField(i int) tea.Cmd {
	if len(m.inputs) == 0 {
		return nil
	}
	m.focus = (i + len(m.inputs)) % len(m.inputs)
	for j := range m.inputs {
		m.inputs[j].Blur()
	}
	m.inputs[m.focus].Focus()
	return textinput.Blink
}

// Values returns the field contents in order.
func (m Model) Values() []string {
	out := make([]string, len(m.inputs))
	for i, in := range m.inputs {
		out[i] = in.Value()
	}
	return out
}

// SetValue replaces the contents of field i.
func (m *Model) SetValue(i int, v string) {
	if i >= 0 && i < len(m.inputs) {
		m.inputs[i].SetValue(v)
	}
}

// Reset clears every field and the error.
func (m *Model) Reset() {
	for i := range m.inputs {
		m.inputs[i].Reset()
	}
	m.Err = ""
}

// Focused returns the index of the focused field.
func (m Model) Focused() int { return m.focus }

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd, Action) {
	if km, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(km, keyCancel):
			return m, nil, Cancel
		case key.Matches(km, keyEnter):
			if m.focus == len(m.inputs)-1 {
				return m, nil, Submit
			}
			return m, m.focusField(m.focus + 1), None
		case key.Matches(km, keyNext):
			return m, m.focusField(m.focus + 1), None
		case key.Matches(km, keyPrev):
			return m, m.focusField(m.focus - 1), None
		}
	}
	if len(m.inputs) == 0 {
		return m, nil, None
	}
	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd, None
}

func (m Model) View() string {
	lines := []string{theme.StyleHeader.Render(m.Title), ""}
	for i, in := range m.inputs {
		label := theme.StyleDimmed.Render(m.labels[i])
		if i == m.focus {
			label = lipgloss.NewStyle().Foreground(theme.ColorSelected).Render(m.labels[i])
		}
		lines = append(lines, label, in.View(), "")
	}
	if m.Err != "" {
		lines = append(lines, theme.StyleError.Render(m.Err))
	}
	if m.Hint != "" {
		lines = append(lines, theme.StyleDimmed.Render(m.Hint))
	}
	return lipgloss.NewStyle().
		Width(m.Width).
		Padding(1, 2).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorder).
		Render(lipgloss.JoinVertical(lipgloss.Left, lines...))
}
