package session

import "github.com/rolvdeihai/rtsp-stream-viewer/internal/frame"

// State is the connection lifecycle of one session.
type State int

const (
	Idle State = iota
	Connecting
	Open
	Closed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Status is a point-in-time copy of a session's state for display.
type Status struct {
	ID          string
	Name        string
	Source      string
	State       State
	Playing     bool
	Loading     bool
	AspectRatio float64
	Frames      frame.Stats
	LastError   string
}

// Observer is told about session changes. Calls come from the session's
// own goroutine and must not block or call back into the Manager.
type Observer interface {
	StateChanged(id string, st Status)
	FrameRendered(id string, seq uint64)
}

type nopObserver struct{}

func (nopObserver) StateChanged(string, Status)  {}
func (nopObserver) FrameRendered(string, uint64) {}

// sameDisplay reports whether two statuses would look the same in the UI.
func sameDisplay(a, b Status) bool {
	return a.State == b.State && a.Playing == b.Playing &&
		a.Loading == b.Loading && a.LastError == b.LastError &&
		a.AspectRatio == b.AspectRatio
}
