// Package transport opens the per-stream WebSocket connections the viewer
// receives frames on.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const closeWriteTimeout = time.Second

// Conn is one open frame connection. ReadMessage blocks until the next text
// payload arrives. Close may be called from another goroutine to unblock it.
type Conn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens a Conn for a source URL. It must honour ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, source string) (Conn, error)
}

// WSDialer dials the frame server over WebSocket.
type WSDialer struct {
	Endpoint         string // e.g. ws://127.0.0.1:8080
	Token            string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration // 0 disables the read deadline
}

// NewWSDialer returns a dialer for endpoint.
func NewWSDialer(endpoint, token string, handshake, read time.Duration) *WSDialer {
	return &WSDialer{Endpoint: endpoint, Token: token, HandshakeTimeout: handshake, ReadTimeout: read}
}

// StreamURL builds the WebSocket URL the server serves source on.
func StreamURL(endpoint, source string) string {
	return strings.TrimRight(endpoint, "/") + "/ws/stream/" + EncodeURIComponent(source) + "/"
}

// componentUnescaper undoes the escapes url.QueryEscape applies but
// JavaScript's encodeURIComponent does not.
var componentUnescaper = strings.NewReplacer(
	"+", "%20",
	"%21", "!",
	"%27", "'",
	"%28", "(",
	"%29", ")",
	"%2A", "*",
)

// EncodeURIComponent escapes s so it survives as a single path segment,
// producing the same text as JavaScript's encodeURIComponent.
func EncodeURIComponent(s string) string {
	return componentUnescaper.Replace(url.QueryEscape(s))
}

// Dial implements Dialer.
func (d *WSDialer) Dial(ctx context.Context, source string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	var header http.Header
	if d.Token != "" {
		header = http.Header{}
		header.Set("Authorization", "Bearer "+d.Token)
	}

	conn, resp, err := dialer.DialContext(ctx, StreamURL(d.Endpoint, source), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", source, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", source, err)
	}

	c := &wsConn{conn: conn, readTimeout: d.ReadTimeout}
	if d.ReadTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
		// Server pings count as liveness too.
		conn.SetPingHandler(func(data string) error {
			conn.SetReadDeadline(time.Now().Add(d.ReadTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(closeWriteTimeout))
		})
	}
	return c, nil
}

type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

// ReadMessage returns the next data payload and pushes the read deadline out.
func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return data, nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
