package session

import (
	"context"
	"errors"
	"image"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/transport"
)

// fakeConn delivers whatever is pushed on msgs. Closing msgs ends the
// connection from the server side.
type fakeConn struct {
	d      *fakeDialer
	msgs   chan []byte
	closed chan struct{}
	once   sync.Once
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case m, ok := <-c.msgs:
		if !ok {
			return nil, io.EOF
		}
		return m, nil
	case <-c.closed:
		return nil, net.ErrClosed
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() {
		close(c.closed)
		c.d.mu.Lock()
		c.d.live--
		c.d.mu.Unlock()
	})
	return nil
}

// fakeDialer records every attempt. When failDial is set every Dial fails;
// when dropImmediately is set each connection closes right away.
type fakeDialer struct {
	mu              sync.Mutex
	attempts        []time.Time
	conns           []*fakeConn
	live            int
	maxLive         int
	failDial        bool
	dropImmediately bool
	dialDelay       time.Duration
}

func (d *fakeDialer) Dial(ctx context.Context, source string) (transport.Conn, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	d.mu.Lock()
	d.attempts = append(d.attempts, time.Now())
	fail, drop, delay := d.failDial, d.dropImmediately, d.dialDelay
	d.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("connection refused")
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	c := &fakeConn{d: d, msgs: make(chan []byte, 64), closed: make(chan struct{})}
	if drop {
		close(c.msgs)
	}
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.live++
	if d.live > d.maxLive {
		d.maxLive = d.live
	}
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) attemptTimes() []time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Time(nil), d.attempts...)
}

func (d *fakeDialer) attemptCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) liveCount() (live, max int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live, d.maxLive
}

// fakeDecoder returns a 32x18 image, or an error for the payload "bad".
// When gate is set each decode waits for a value on it.
type fakeDecoder struct {
	gate chan struct{}
}

func (f *fakeDecoder) Decode(payload []byte) (image.Image, error) {
	if f.gate != nil {
		<-f.gate
	}
	if string(payload) == "bad" {
		return nil, errors.New("corrupt frame")
	}
	return image.NewRGBA(image.Rect(0, 0, 32, 18)), nil
}

// recordObserver keeps everything the sessions report.
type recordObserver struct {
	mu     sync.Mutex
	states []Status
	seqs   []uint64
}

func (o *recordObserver) StateChanged(id string, st Status) {
	o.mu.Lock()
	o.states = append(o.states, st)
	o.mu.Unlock()
}

func (o *recordObserver) FrameRendered(id string, seq uint64) {
	o.mu.Lock()
	o.seqs = append(o.seqs, seq)
	o.mu.Unlock()
}

func (o *recordObserver) rendered() []uint64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]uint64(nil), o.seqs...)
}

func (o *recordObserver) sawState(s State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, st := range o.states {
		if st.State == s {
			return true
		}
	}
	return false
}
