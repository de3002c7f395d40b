package addstream

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeText(m Model, s string) Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func TestAddStream_Submit(t *testing.T) {
	m := New()
	m.Open()
	m = typeText(m, "Yard")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	m = typeText(m, "rtsp://cam/yard")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, SubmitMsg{Name: "Yard", URL: "rtsp://cam/yard"}, cmd())
}

func TestAddStream_Cancel(t *testing.T) {
	m := New()
	m.Open()
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	require.NotNil(t, cmd)
	assert.Equal(t, CancelMsg{}, cmd())
}

func TestAddStream_OpenClears(t *testing.T) {
	m := New()
	m.Open()
	m = typeText(m, "Yard")
	m.Open()
	assert.NotContains(t, m.View(80, 24), "Yard")
}
