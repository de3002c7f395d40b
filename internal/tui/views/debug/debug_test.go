package debug

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdd_KeepsOrder(t *testing.T) {
	m := New()
	m.Add(KindSession, "Front door", "connecting")
	m.Add(KindUI, "", "signed in as ops")

	entries := m.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "Front door", entries[0].Stream)
	assert.Equal(t, "connecting", entries[0].Message)
	assert.Equal(t, KindUI, entries[1].Kind)
}

func TestRing_DropsOldest(t *testing.T) {
	m := New()
	for i := 0; i < capacity+50; i++ {
		m.Add(KindSession, "cam", fmt.Sprintf("msg %d", i))
	}
	entries := m.Entries()
	require.Len(t, entries, capacity)
	assert.Equal(t, "msg 50", entries[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", capacity+49), entries[capacity-1].Message)
}

func TestScroll(t *testing.T) {
	m := New()
	for i := 0; i < 20; i++ {
		m.Add(KindSession, "cam", "msg")
	}
	m.ScrollUp(5)
	assert.Equal(t, 5, m.Offset)
	m.ScrollDown(3)
	assert.Equal(t, 2, m.Offset)
	m.ScrollDown(10)
	assert.Zero(t, m.Offset)

	m.ScrollUp(100)
	assert.Equal(t, 19, m.Offset)
	m.Add(KindList, "yard", "added")
	assert.Zero(t, m.Offset, "a new entry jumps to the bottom")

	empty := New()
	empty.ScrollUp(3)
	assert.Zero(t, empty.Offset)
}

func TestErrorsOnly(t *testing.T) {
	m := New()
	m.Add(KindSession, "yard", "open")
	m.Add(KindError, "lobby", "closed: connection refused")
	m.Add(KindList, "", "added lobby")

	m.ToggleErrors()
	v := m.View(100, 20)
	assert.Contains(t, v, "connection refused")
	assert.NotContains(t, v, "added lobby")

	m.ScrollUp(10)
	assert.Zero(t, m.Offset, "scrolling is bounded by the filtered entries")

	m.ToggleErrors()
	assert.Contains(t, m.View(100, 20), "added lobby")
}

func TestView(t *testing.T) {
	assert.Contains(t, New().View(80, 20), "No events")

	m := New()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	m.AddAt(at, KindSession, "yard", "open")
	m.AddAt(at, KindError, "lobby", "closed: refused")
	m.AddAt(at, KindError, "lobby", "closed: refused again")
	v := m.View(100, 20)
	assert.Contains(t, v, "03:04:05.000")
	assert.Contains(t, v, "yard")
	assert.Contains(t, v, "closed: refused")
	assert.Contains(t, v, "lobby×2")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 3))
	assert.Equal(t, "ab…", truncate("abcd", 3))
	assert.Equal(t, "a", truncate("abcd", 1))
}
