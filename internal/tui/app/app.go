// Package app is the root Bubble Tea model of the viewer: it owns the stream
// list, mirrors it into the session manager and draws the tile grid.
package app

import (
	"context"
	"errors"
	"image"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/auth"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/session"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/streams"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/addstream"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/debug"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/grid"
	helpview "github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/help"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/login"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/tui/views/status"
	"go.uber.org/zap"
)

// Sessions is the part of session.Manager the UI drives.
type Sessions interface {
	CreateSession(stream streams.Stream) (*session.Session, error)
	DestroySession(id string) error
	SetPlaying(id string, playing bool) error
	OnResize(id string, width int) error
	Status(id string) (session.Status, error)
	Snapshot(id string) (*image.RGBA, error)
	Sync(list []streams.Stream) error
}

// Overlay identifies which modal is active.
type Overlay int

const (
	OverlayNone Overlay = iota
	OverlayAdd
	OverlayHelp
	OverlayDebug
)

// Options configure the root model.
type Options struct {
	Endpoint   string
	MaxColumns int
	Gate       *auth.Gate
	Logger     *zap.Logger
}

// Model is the root Bubble Tea model.
type Model struct {
	sessions Sessions
	list     *streams.List
	notifier *Notifier
	gate     *auth.Gate
	log      *zap.Logger
	ctx      context.Context
	cancel   context.CancelFunc

	keys   KeyMap
	width  int
	height int

	authenticated bool
	user          string
	overlay       Overlay

	statusBar status.Model
	grid      grid.Model
	debug     debug.Model
	login     login.Model
	add       addstream.Model
	helpView  *helpview.Model
	footer    help.Model
	spinner   spinner.Model
}

// New creates the root model. The notifier must be the observer the
// sessions were created with.
func New(sessions Sessions, list *streams.List, notifier *Notifier, opts Options) Model {
	if opts.Gate == nil {
		opts.Gate = auth.NewGate("", "")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	keys := DefaultKeyMap()
	hv := helpview.New(keys.FullHelp())
	return Model{
		sessions:      sessions,
		list:          list,
		notifier:      notifier,
		gate:          opts.Gate,
		log:           opts.Logger,
		ctx:           ctx,
		cancel:        cancel,
		keys:          keys,
		authenticated: !opts.Gate.Enabled(),
		statusBar:     status.New(opts.Endpoint),
		grid:          grid.New(opts.MaxColumns),
		debug:         debug.New(),
		login:         login.New(opts.Gate),
		add:           addstream.New(),
		helpView:      &hv,
		footer:        help.New(),
		spinner:       spinner.New(spinner.WithSpinner(spinner.Dot)),
	}
}

// Init mounts the sessions, or shows the login form first when required.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick, m.notifier.Wait(m.ctx)}
	if m.authenticated {
		m.syncSessions()
	} else {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.statusBar.Width = msg.Width
		m.grid.Width = msg.Width
		m.footer.Width = msg.Width
		m.resizeTiles()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case RefreshMsg:
		for _, e := range msg.Events {
			kind := debug.KindSession
			if e.Err {
				kind = debug.KindError
			}
			m.debug.AddAt(e.Time, kind, e.Stream, e.Message)
		}
		return m, m.notifier.Wait(m.ctx)

	case grid.AnimMsg:
		return m, m.grid.Step()

	case login.AuthenticatedMsg:
		m.authenticated = true
		m.user = msg.User
		m.statusBar.User = msg.User
		m.debug.Add(debug.KindUI, "", "signed in as "+msg.User)
		m.syncSessions()
		m.resizeTiles()
		return m, nil

	case addstream.SubmitMsg:
		return m.addStream(msg)

	case addstream.CancelMsg:
		m.overlay = OverlayNone
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		m.cancel()
		return m, tea.Quit
	}

	if !m.authenticated {
		var cmd tea.Cmd
		m.login, cmd = m.login.Update(msg)
		return m, cmd
	}

	switch m.overlay {
	case OverlayAdd:
		var cmd tea.Cmd
		m.add, cmd = m.add.Update(msg)
		return m, cmd
	case OverlayDebug:
		switch {
		case key.Matches(msg, m.keys.Escape), key.Matches(msg, m.keys.Debug):
			m.overlay = OverlayNone
		case key.Matches(msg, m.keys.Up):
			m.debug.ScrollUp(1)
		case key.Matches(msg, m.keys.Down):
			m.debug.ScrollDown(1)
		case key.Matches(msg, m.keys.ErrorsOnly):
			m.debug.ToggleErrors()
		}
		return m, nil
	case OverlayHelp:
		if key.Matches(msg, m.keys.Escape) || key.Matches(msg, m.keys.Help) {
			m.overlay = OverlayNone
		}
		return m, nil
	}

	n := m.list.Len()
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.cancel()
		return m, tea.Quit

	case key.Matches(msg, m.keys.Left):
		return m, m.grid.Move(-1, 0, n)
	case key.Matches(msg, m.keys.Right):
		return m, m.grid.Move(1, 0, n)
	case key.Matches(msg, m.keys.Up):
		return m, m.grid.Move(0, -1, n)
	case key.Matches(msg, m.keys.Down):
		return m, m.grid.Move(0, 1, n)

	case key.Matches(msg, m.keys.Toggle):
		m.toggleSelected()
		return m, nil

	case key.Matches(msg, m.keys.Delete):
		m.deleteSelected()
		return m, nil

	case key.Matches(msg, m.keys.Add):
		m.overlay = OverlayAdd
		return m, m.add.Open()

	case key.Matches(msg, m.keys.Fullscreen):
		m.grid.Fullscreen = !m.grid.Fullscreen
		m.resizeTiles()
		return m, nil

	case key.Matches(msg, m.keys.Help):
		m.overlay = OverlayHelp
		return m, nil

	case key.Matches(msg, m.keys.Debug):
		m.overlay = OverlayDebug
		return m, nil

	case key.Matches(msg, m.keys.Logout):
		if !m.gate.Enabled() {
			return m, nil
		}
		m.authenticated = false
		m.user = ""
		m.statusBar.User = ""
		m.grid.Fullscreen = false
		if err := m.sessions.Sync(nil); err != nil {
			m.log.Warn("unmounting sessions", zap.Error(err))
		}
		m.debug.Add(debug.KindUI, "", "signed out")
		return m, m.login.Reset()
	}

	return m, nil
}

func (m *Model) selected() (streams.Stream, bool) {
	all := m.list.All()
	if len(all) == 0 {
		return streams.Stream{}, false
	}
	return all[min(m.grid.Selected, len(all)-1)], true
}

func (m *Model) toggleSelected() {
	sel, ok := m.selected()
	if !ok {
		return
	}
	st, found, err := m.list.Toggle(sel.ID)
	if !found {
		return
	}
	if err != nil {
		m.log.Error("saving stream list", zap.Error(err))
		m.debug.Add(debug.KindError, "", "save failed: "+err.Error())
	}
	if err := m.sessions.SetPlaying(st.ID, st.Playing); err != nil {
		m.log.Warn("set playing", zap.String("stream", st.ID), zap.Error(err))
	}
	verb := "paused"
	if st.Playing {
		verb = "playing"
	}
	m.debug.Add(debug.KindList, st.Name, verb)
}

func (m *Model) deleteSelected() {
	sel, ok := m.selected()
	if !ok {
		return
	}
	found, err := m.list.Delete(sel.ID)
	if !found {
		return
	}
	if err != nil {
		m.log.Error("saving stream list", zap.Error(err))
		m.debug.Add(debug.KindError, "", "save failed: "+err.Error())
	}
	if err := m.sessions.DestroySession(sel.ID); err != nil && !errors.Is(err, session.ErrUnknownSession) {
		m.log.Warn("destroy session", zap.String("stream", sel.ID), zap.Error(err))
	}
	m.notifier.Forget(sel.ID)
	m.debug.Add(debug.KindList, sel.Name, "deleted")

	n := m.list.Len()
	m.grid.Selected = min(m.grid.Selected, max(n-1, 0))
	m.resizeTiles()
}

func (m Model) addStream(msg addstream.SubmitMsg) (tea.Model, tea.Cmd) {
	st, err := m.list.Add(msg.Name, msg.URL)
	if errors.Is(err, streams.ErrInvalidStream) {
		// Blank fields: keep the form open and do nothing.
		return m, nil
	}
	if err != nil {
		m.log.Error("saving stream list", zap.Error(err))
		m.debug.Add(debug.KindError, "", "save failed: "+err.Error())
	}
	if _, err := m.sessions.CreateSession(st); err != nil {
		m.log.Warn("create session", zap.String("stream", st.ID), zap.Error(err))
	}
	m.debug.Add(debug.KindList, st.Name, "added")
	m.overlay = OverlayNone

	n := m.list.Len()
	cmd := m.grid.Select(n-1, n)
	m.resizeTiles()
	return m, cmd
}

func (m *Model) syncSessions() {
	if err := m.sessions.Sync(m.list.All()); err != nil {
		m.log.Warn("mounting sessions", zap.Error(err))
	}
}

// resizeTiles pushes the current tile width to every session.
func (m *Model) resizeTiles() {
	if !m.authenticated || m.width == 0 {
		return
	}
	all := m.list.All()
	w := m.grid.TileWidth(len(all))
	for _, st := range all {
		if err := m.sessions.OnResize(st.ID, w); err != nil && !errors.Is(err, session.ErrUnknownSession) {
			m.log.Warn("resize", zap.String("stream", st.ID), zap.Error(err))
		}
	}
}

func (m Model) tiles() []grid.Tile {
	all := m.list.All()
	out := make([]grid.Tile, 0, len(all))
	for _, st := range all {
		t := grid.Tile{Status: session.Status{ID: st.ID, Name: st.Name, Source: st.URL, Playing: st.Playing}}
		if s, err := m.sessions.Status(st.ID); err == nil {
			t.Status = s
			t.Image, _ = m.sessions.Snapshot(st.ID)
		}
		out = append(out, t)
	}
	return out
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}
	if !m.authenticated {
		return m.login.View(m.width, m.height)
	}

	switch m.overlay {
	case OverlayAdd:
		return m.add.View(m.width, m.height)
	case OverlayHelp:
		return m.helpView.View(m.width, m.height)
	case OverlayDebug:
		return m.debug.View(m.width, m.height)
	}

	tiles := m.tiles()
	statuses := make([]session.Status, len(tiles))
	for i, t := range tiles {
		statuses[i] = t.Status
	}
	m.statusBar.SetCounts(statuses)
	m.grid.Spinner = m.spinner.View()

	return lipgloss.JoinVertical(lipgloss.Left,
		m.statusBar.View(),
		m.grid.View(tiles),
		" "+m.footer.View(m.keys),
	)
}

// Close stops the notifier wait loop. The caller owns the session manager.
func (m Model) Close() {
	m.cancel()
}
