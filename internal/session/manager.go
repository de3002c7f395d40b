package session

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/frame"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/streams"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/transport"
	"go.uber.org/zap"
)

// ErrUnknownSession is returned for an id with no mounted session.
var ErrUnknownSession = errors.New("session: unknown stream id")

const (
	defaultReconnectDelay = 3 * time.Second
	defaultWidth          = 64
)

// Options tune every session a Manager creates.
type Options struct {
	ReconnectDelay time.Duration
	InitialWidth   int
	Logger         *zap.Logger
	Metrics        *metrics.Viewer
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = defaultReconnectDelay
	}
	if o.InitialWidth <= 0 {
		o.InitialWidth = defaultWidth
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.NewViewer()
	}
	return o
}

// Manager owns the id → session map. Sessions share nothing with each other.
type Manager struct {
	dialer  transport.Dialer
	decoder frame.Decoder
	obs     Observer
	opts    Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager returns a Manager. obs may be nil.
func NewManager(d transport.Dialer, dec frame.Decoder, obs Observer, opts Options) *Manager {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Manager{
		dialer:   d,
		decoder:  dec,
		obs:      obs,
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// CreateSession mounts a session for stream and starts it if the stream is
// playing. Creating an already mounted id returns the existing session.
func (m *Manager) CreateSession(stream streams.Stream) (*Session, error) {
	m.mu.Lock()
	if s, ok := m.sessions[stream.ID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	s := newSession(stream, m.dialer, m.decoder, m.obs, m.opts)
	m.sessions[stream.ID] = s
	m.mu.Unlock()

	m.opts.Metrics.ActiveSessions.Inc()
	m.opts.Logger.Debug("session created", zap.String("stream", stream.ID), zap.String("url", stream.URL))
	if stream.Playing {
		if err := s.SetPlaying(true); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// DestroySession closes the connection, cancels timers and forgets id.
func (m *Manager) DestroySession(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownSession
	}

	err := s.Destroy()
	m.opts.Metrics.ActiveSessions.Dec()
	m.opts.Metrics.Forget(id)
	return err
}

// SetPlaying starts or stops the session for id.
func (m *Manager) SetPlaying(id string, playing bool) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.SetPlaying(playing)
}

// OnResize sets the viewport width of id.
func (m *Manager) OnResize(id string, width int) error {
	s, err := m.get(id)
	if err != nil {
		return err
	}
	return s.Resize(width)
}

// Status returns the status of id.
func (m *Manager) Status(id string) (Status, error) {
	s, err := m.get(id)
	if err != nil {
		return Status{}, err
	}
	return s.Status(), nil
}

// Snapshot returns the current image of id, nil before the first frame.
func (m *Manager) Snapshot(id string) (*image.RGBA, error) {
	s, err := m.get(id)
	if err != nil {
		return nil, err
	}
	img, _ := s.Snapshot()
	return img, nil
}

// Sync mounts, updates and unmounts sessions so they match list.
func (m *Manager) Sync(list []streams.Stream) error {
	want := make(map[string]bool, len(list))
	var errs []error
	for _, st := range list {
		want[st.ID] = true
		s, err := m.get(st.ID)
		if errors.Is(err, ErrUnknownSession) {
			_, err = m.CreateSession(st)
			errs = append(errs, err)
			continue
		}
		if s.Status().Playing != st.Playing {
			errs = append(errs, s.SetPlaying(st.Playing))
		}
	}

	for _, id := range m.IDs() {
		if !want[id] {
			errs = append(errs, m.DestroySession(id))
		}
	}
	return errors.Join(errs...)
}

// IDs returns the mounted session ids in no particular order.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

// Close destroys every session. Sessions destroyed concurrently by another
// caller are skipped; any other failure is logged and returned.
func (m *Manager) Close() error {
	var errs []error
	for _, id := range m.IDs() {
		err := m.DestroySession(id)
		if err == nil || errors.Is(err, ErrUnknownSession) {
			continue
		}
		m.opts.Logger.Warn("destroy session on close", zap.String("stream", id), zap.Error(err))
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

func (m *Manager) get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}
