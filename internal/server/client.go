package server

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/capture"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
)

// client writes frames to one viewer. It holds at most one unsent frame: a
// newer frame replaces it, so a slow viewer skips frames instead of lagging.
type client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	metrics      *metrics.Server

	mu       sync.Mutex
	latest   []byte
	closing  bool
	closeErr error

	wake chan struct{}
	done chan struct{}
}

func newClient(conn *websocket.Conn, writeTimeout time.Duration, m *metrics.Server) *client {
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	c := &client{
		conn:         conn,
		writeTimeout: writeTimeout,
		metrics:      m,
		wake:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send implements capture.Subscriber.
func (c *client) Send(payload []byte) bool {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return false
	}
	replaced := c.latest != nil
	c.latest = payload
	c.mu.Unlock()
	c.signal()
	return replaced
}

// Close implements capture.Subscriber. Only the first call counts.
func (c *client) Close(reason error) {
	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return
	}
	c.closing = true
	c.closeErr = reason
	c.mu.Unlock()
	c.signal()
}

func (c *client) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *client) wait() {
	<-c.done
}

func (c *client) writePump() {
	defer close(c.done)
	defer c.conn.Close()
	for range c.wake {
		c.mu.Lock()
		payload := c.latest
		c.latest = nil
		closing, reason := c.closing, c.closeErr
		c.mu.Unlock()

		if payload != nil {
			c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.Close(err)
				return
			}
			c.metrics.FramesSent.Inc()
		}
		if closing {
			code, text := closeFrame(reason)
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(code, text), time.Now().Add(c.writeTimeout))
			return
		}
	}
}

// closeFrame maps why a viewer is dropped to a WebSocket close code.
func closeFrame(reason error) (int, string) {
	switch {
	case reason == nil:
		return websocket.CloseNormalClosure, ""
	case errors.Is(reason, capture.ErrHubClosed):
		return websocket.CloseGoingAway, "server shutting down"
	case errors.Is(reason, capture.ErrSourceFailed):
		return websocket.CloseInternalServerErr, "source failed"
	}
	text := reason.Error()
	// Control frame payloads are capped at 125 bytes including the code.
	if len(text) > 120 {
		text = text[:120]
	}
	return websocket.CloseInternalServerErr, text
}
