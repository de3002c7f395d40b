package app

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/session"
)

const maxPendingEvents = 100

// Event is a session state change worth logging.
type Event struct {
	Time    time.Time
	Stream  string
	Message string
	Err     bool
}

// RefreshMsg tells the model that one or more sessions changed.
type RefreshMsg struct {
	Events []Event
}

// Notifier is the session.Observer of the TUI. Sessions call it from their
// own goroutines while Update may be blocked in a Manager call, so it never
// blocks: it records the change and marks the screen dirty, and Wait turns
// the dirty mark into a RefreshMsg.
type Notifier struct {
	dirty chan struct{}

	mu     sync.Mutex
	events []Event
	names  map[string]string
}

func NewNotifier() *Notifier {
	return &Notifier{
		dirty: make(chan struct{}, 1),
		names: make(map[string]string),
	}
}

// StateChanged implements session.Observer.
func (n *Notifier) StateChanged(id string, st session.Status) {
	msg := st.State.String()
	switch {
	case !st.Playing:
		msg = "paused"
	case st.Loading && st.State == session.Open:
		msg = "open, waiting for first frame"
	}
	if st.LastError != "" {
		msg += ": " + st.LastError
	}

	n.mu.Lock()
	name := st.Name
	if name == "" {
		name = id
	}
	if n.names[id] != msg {
		n.names[id] = msg
		n.events = append(n.events, Event{
			Time:    time.Now(),
			Stream:  name,
			Message: msg,
			Err:     st.LastError != "",
		})
		if len(n.events) > maxPendingEvents {
			n.events = n.events[len(n.events)-maxPendingEvents:]
		}
	}
	n.mu.Unlock()
	n.signal()
}

// Forget drops the remembered state of a deleted stream.
func (n *Notifier) Forget(id string) {
	n.mu.Lock()
	delete(n.names, id)
	n.mu.Unlock()
}

// FrameRendered implements session.Observer.
func (n *Notifier) FrameRendered(string, uint64) {
	n.signal()
}

func (n *Notifier) signal() {
	select {
	case n.dirty <- struct{}{}:
	default:
	}
}

// Wait returns a command that blocks until something changed or ctx ends.
func (n *Notifier) Wait(ctx context.Context) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-n.dirty:
		case <-ctx.Done():
			return nil
		}
		n.mu.Lock()
		events := n.events
		n.events = nil
		n.mu.Unlock()
		return RefreshMsg{Events: events}
	}
}
