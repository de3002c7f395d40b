// Package login is the credential form shown before the stream grid when a
// username is configured.
package login

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/auth"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/form"
)

// AuthenticatedMsg is sent after a successful login.
type AuthenticatedMsg struct {
	User string
}

type Model struct {
	gate *auth.Gate
	form form.Model
}

func New(gate *auth.Gate) Model {
	f := form.New("Sign in",
		form.Field{Label: "Username", Placeholder: "username", Limit: 64},
		form.Field{Label: "Password", Placeholder: "password", Secret: true, Limit: 128},
	)
	f.Hint = "tab:next field  enter:sign in  ctrl+c:quit"
	f.Focus()
	return Model{gate: gate, form: f}
}

// Reset clears the form for the next login.
func (m *Model) Reset() tea.Cmd {
	m.form.Reset()
	return m.form.Focus()
}

func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	var (
		cmd tea.Cmd
		act form.Action
	)
	m.form, cmd, act = m.form.Update(msg)
	if act != form.Submit {
		return m, cmd
	}

	vals := m.form.Values()
	if err := m.gate.Check(vals[0], vals[1]); err != nil {
		m.form.Err = "Invalid username or password"
		m.form.SetValue(1, "")
		return m, nil
	}
	user := vals[0]
	m.form.Reset()
	return m, func() tea.Msg { return AuthenticatedMsg{User: user} }
}

// View centers the form in a width×height area.
func (m Model) View(width, height int) string {
	return lipgloss.Place(width, height, lipgloss.Center, lipgloss.Center, m.form.View())
}
