// Package session runs one connection session per stream: it dials the
// frame server, reconnects after a fixed delay while playing, and feeds
// received payloads through a coalescing buffer into the stream's viewport.
//
// Each Session has a single goroutine that owns all of its state. Transport
// events, decode results, the reconnect timer and control calls all reach it
// over channels, so none of them ever run concurrently.
package session

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/frame"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/render"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/streams"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/transport"
	"go.uber.org/zap"
)

// ErrSessionClosed is returned by calls on a destroyed session.
var ErrSessionClosed = errors.New("session: closed")

type eventKind int

const (
	evDialed eventKind = iota
	evMessage
	evClosed
)

// connEvent comes from the dial/read goroutine of connection generation gen.
type connEvent struct {
	gen  uint64
	kind eventKind
	conn transport.Conn
	data []byte
	err  error
}

// decodeResult is tagged with the buffer epoch it was dispatched in.
type decodeResult struct {
	epoch uint64
	bm    frame.Bitmap
	err   error
}

// Session is the per-stream connection state machine.
type Session struct {
	id     string
	name   string
	source string

	dialer  transport.Dialer
	decoder frame.Decoder
	view    *render.Viewport
	buf     *frame.Buffer
	obs     Observer
	log     *zap.Logger
	metrics *metrics.Viewer
	delay   time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	cmds    chan func()
	events  chan connEvent
	decoded chan decodeResult
	done    chan struct{}

	// Owned by run.
	state     State
	playing   bool
	loading   bool
	destroyed bool
	gen       uint64
	conn      transport.Conn
	connStop  context.CancelFunc
	epoch     uint64
	seq       uint64
	timer     *time.Timer
	timerC    <-chan time.Time
	lastErr   error

	mu     sync.Mutex
	status Status
}

func newSession(stream streams.Stream, d transport.Dialer, dec frame.Decoder, obs Observer, opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      stream.ID,
		name:    stream.Name,
		source:  stream.URL,
		dialer:  d,
		decoder: dec,
		view:    render.NewViewport(opts.InitialWidth),
		obs:     obs,
		log:     opts.Logger.With(zap.String("stream", stream.ID), zap.String("name", stream.Name)),
		metrics: opts.Metrics,
		delay:   opts.ReconnectDelay,
		ctx:     ctx,
		cancel:  cancel,
		cmds:    make(chan func()),
		events:  make(chan connEvent),
		decoded: make(chan decodeResult),
		done:    make(chan struct{}),
	}
	s.buf = frame.NewBuffer(viewRenderer{s}, s.dispatchDecode)
	s.status = s.currentStatus()
	go s.run()
	return s
}

// ID returns the stream id the session belongs to.
func (s *Session) ID() string { return s.id }

// Status returns the last published status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Snapshot returns the current viewport image, nil before the first frame.
func (s *Session) Snapshot() (*image.RGBA, uint64) {
	return s.view.Snapshot()
}

// SetPlaying starts or stops the stream. Stopping returns after the
// connection is closed and any reconnect timer is cancelled.
func (s *Session) SetPlaying(playing bool) error {
	return s.do(func() {
		if playing {
			s.play()
		} else {
			s.stop()
		}
	})
}

// Resize sets the viewport width and redraws the last frame.
func (s *Session) Resize(width int) error {
	return s.do(func() { s.view.Resize(width) })
}

// Destroy tears the session down for good.
func (s *Session) Destroy() error {
	err := s.do(func() {
		s.stop()
		s.view.Clear()
		s.cancel()
		s.destroyed = true
	})
	if errors.Is(err, ErrSessionClosed) {
		return nil
	}
	<-s.done
	return err
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(fn func()) error {
	ack := make(chan struct{})
	wrapped := func() {
		fn()
		s.publish()
		close(ack)
	}
	select {
	case s.cmds <- wrapped:
		<-ack
		return nil
	case <-s.done:
		return ErrSessionClosed
	}
}

func (s *Session) run() {
	defer close(s.done)
	for {
		select {
		case fn := <-s.cmds:
			fn()
			if s.destroyed {
				return
			}
			continue
		case ev := <-s.events:
			s.handleConnEvent(ev)
		case r := <-s.decoded:
			s.handleDecoded(r)
		case <-s.timerC:
			s.timer, s.timerC = nil, nil
			if s.playing && s.state == Closed {
				s.log.Debug("reconnecting")
				s.connect()
			}
		}
		s.publish()
	}
}

func (s *Session) play() {
	s.playing = true
	switch s.state {
	case Idle:
		s.connect()
	case Closed:
		if s.timer == nil {
			s.connect()
		}
	}
}

func (s *Session) stop() {
	s.playing = false
	s.stopTimer()
	s.teardownConn()
	s.state = Idle
	s.loading = false
	s.lastErr = nil
}

func (s *Session) connect() {
	s.stopTimer()
	s.teardownConn()

	ctx, cancel := context.WithCancel(s.ctx)
	s.connStop = cancel
	s.state = Connecting
	s.loading = true
	s.metrics.ConnectAttempts.WithLabelValues(s.id).Inc()

	go s.dial(ctx, s.gen)
}

// dial opens the connection and then becomes its read pump.
func (s *Session) dial(ctx context.Context, gen uint64) {
	conn, err := s.dialer.Dial(ctx, s.source)
	select {
	case s.events <- connEvent{gen: gen, kind: evDialed, conn: conn, err: err}:
	case <-ctx.Done():
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		return
	}

	for {
		data, err := conn.ReadMessage()
		ev := connEvent{gen: gen, kind: evMessage, data: data}
		if err != nil {
			ev = connEvent{gen: gen, kind: evClosed, err: err}
		}
		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) handleConnEvent(ev connEvent) {
	if ev.gen != s.gen {
		// Superseded connection.
		if ev.conn != nil {
			ev.conn.Close()
		}
		return
	}

	switch ev.kind {
	case evDialed:
		if ev.err != nil {
			s.onClosed(ev.err)
			return
		}
		s.conn = ev.conn
		s.log.Debug("connected")
	case evMessage:
		if s.state == Connecting {
			s.state = Open
			s.lastErr = nil
		}
		s.seq++
		s.metrics.FramesReceived.WithLabelValues(s.id).Inc()
		before := s.buf.Stats().Coalesced
		s.buf.Ingest(frame.Payload{Seq: s.seq, Data: ev.data})
		if s.buf.Stats().Coalesced > before {
			s.metrics.FramesDropped.WithLabelValues(s.id).Inc()
		}
	case evClosed:
		s.onClosed(ev.err)
	}
}

func (s *Session) onClosed(err error) {
	s.teardownConn()
	s.state = Closed
	s.loading = false
	s.lastErr = err
	if !s.playing {
		return
	}
	s.log.Info("connection closed, reconnect scheduled", zap.Error(err), zap.Duration("delay", s.delay))
	s.timer = time.NewTimer(s.delay)
	s.timerC = s.timer.C
	s.metrics.ReconnectsPlanned.WithLabelValues(s.id).Inc()
}

// teardownConn closes the live connection, if any, and invalidates every
// event and decode result that belongs to it.
func (s *Session) teardownConn() {
	s.gen++
	if s.connStop != nil {
		s.connStop()
		s.connStop = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.buf.Reset()
	s.epoch++
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer, s.timerC = nil, nil
	}
}

func (s *Session) dispatchDecode(p frame.Payload) {
	epoch := s.epoch
	go func() {
		start := time.Now()
		img, err := s.decoder.Decode(p.Data)
		s.metrics.DecodeDuration.Observe(time.Since(start).Seconds())
		select {
		case s.decoded <- decodeResult{epoch: epoch, bm: frame.Bitmap{Seq: p.Seq, Image: img}, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) handleDecoded(r decodeResult) {
	if r.epoch != s.epoch {
		return
	}
	if r.err != nil {
		s.log.Debug("frame discarded", zap.Uint64("seq", r.bm.Seq), zap.Error(r.err))
		s.metrics.DecodeFailures.WithLabelValues(s.id).Inc()
	}
	s.buf.Complete(r.bm, r.err)
}

func (s *Session) currentStatus() Status {
	st := Status{
		ID:          s.id,
		Name:        s.name,
		Source:      s.source,
		State:       s.state,
		Playing:     s.playing,
		Loading:     s.loading,
		AspectRatio: s.view.Aspect(),
		Frames:      s.buf.Stats(),
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Session) publish() {
	st := s.currentStatus()
	s.mu.Lock()
	changed := !sameDisplay(s.status, st)
	s.status = st
	s.mu.Unlock()
	if changed {
		s.obs.StateChanged(s.id, st)
	}
}

// viewRenderer draws into the session viewport from inside the loop.
type viewRenderer struct{ s *Session }

func (r viewRenderer) Render(bm frame.Bitmap) {
	s := r.s
	s.view.Render(bm)
	s.loading = false
	s.metrics.FramesRendered.WithLabelValues(s.id).Inc()
	s.obs.FrameRendered(s.id, bm.Seq)
}
