// Package addstream is the overlay form for adding a stream by name and URL.
package addstream

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/form"
)

// SubmitMsg carries the entered values. Validation is the stream list's job.
type SubmitMsg struct {
	Name string
	URL  string
}

// CancelMsg closes the overlay without adding anything.
type CancelMsg struct{}

type Model struct {
	form form.Model
}

func New() Model {
	f := form.New("Add stream",
		form.Field{Label: "Name", Placeholder: "Front door", Limit: 64},
		form.Field{Label: "URL", Placeholder: "rtsp://camera.local/stream1", Limit: 1024},
	)
	f.Width = 64
	f.Hint = "tab:next field  enter:add  esc:cancel"
	return Model{form: f}
}

// Open clears the form and focuses the name field.
func (m *Model) Open() tea.Cmd {
	m.form.Reset()
	return m.form.Focus()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var (
		cmd tea.Cmd
		act form.Action
	)
	m.form, cmd, act = m.form.Update(msg)
	switch act {
	case form.Submit:
		vals := m.form.Values()
		return m, func() tea.Msg { return SubmitMsg{Name: vals[0], URL: vals[1]} }
	case form.Cancel:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View centers the form in a width×height area.
func (m Model) View(width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.form.View())
}
