// Package server is the frame server: it upgrades viewers on
// /ws/stream/<source> and fans the shared capture of that source out to them.
package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/capture"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/server/web"
	"go.uber.org/zap"
)

// ErrTooManyConnections is returned when the server is at its connection limit.
var ErrTooManyConnections = errors.New("server: too many connections")

const tokenHeader = "X-Viewer-Token"

type Server struct {
	cfg     config.ServerConfig
	hub     *capture.Hub
	log     *zap.Logger
	metrics *metrics.Server
	engine  *gin.Engine
	started time.Time

	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool

	mu      sync.Mutex
	clients int
	closed  bool
}

// New builds the server and its routes. log and m may be nil.
func New(cfg config.ServerConfig, hub *capture.Hub, log *zap.Logger, m *metrics.Server) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewServer()
	}
	s := &Server{
		cfg:            cfg,
		hub:            hub,
		log:            log,
		metrics:        m,
		started:        time.Now(),
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
	}
	for _, origin := range cfg.AllowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := gin.New()
	// Sources arrive percent-encoded in one path segment.
	r.UseRawPath = true
	r.UnescapePathValues = true
	r.Use(recovery(s.log), requestLog(s.log))

	r.GET("/ws/stream/*source", s.handleStream)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(metrics.Handler(s.metrics.Registry)))
	if s.cfg.ServeUI {
		r.NoRoute(gin.WrapH(web.Handler()))
	}

	s.engine = r
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("frame server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	// Closing the hub sends every viewer a close frame before the listener goes.
	s.hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ClientCount reports connected viewers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clients
}

func (s *Server) reserve() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return capture.ErrHubClosed
	}
	if s.cfg.MaxConnections > 0 && s.clients >= s.cfg.MaxConnections {
		return ErrTooManyConnections
	}
	s.clients++
	return nil
}

func (s *Server) release() {
	s.mu.Lock()
	s.clients--
	s.mu.Unlock()
}

// sourceParam recovers the source URL from the catch-all path value.
func sourceParam(raw string) string {
	src := strings.TrimPrefix(raw, "/")
	return strings.TrimSuffix(src, "/")
}

func (s *Server) handleStream(c *gin.Context) {
	source := sourceParam(c.Param("source"))
	if source == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing source"})
		return
	}
	if !s.authorize(c.Request) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if err := s.reserve(); err != nil {
		if errors.Is(err, ErrTooManyConnections) {
			s.metrics.RejectedClients.Inc()
		}
		s.log.Warn("viewer rejected", zap.String("remote", c.Request.RemoteAddr), zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer s.release()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Debug("upgrade failed", zap.String("remote", c.Request.RemoteAddr), zap.Error(err))
		return
	}

	log := s.log.With(zap.String("source", source), zap.String("remote", c.Request.RemoteAddr))
	cl := newClient(conn, s.cfg.WriteTimeout, s.metrics)
	s.metrics.ActiveClients.Inc()
	defer s.metrics.ActiveClients.Dec()

	unsubscribe, err := s.hub.Subscribe(source, cl)
	if err != nil {
		log.Warn("cannot open source", zap.Error(err))
		cl.Close(err)
		cl.wait()
		return
	}
	log.Info("viewer connected")

	// Viewers never send anything; reading only detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	unsubscribe()
	cl.Close(nil)
	cl.wait()
	log.Info("viewer disconnected")
}

func (s *Server) authorize(r *http.Request) bool {
	if s.cfg.AuthToken == "" {
		return true
	}
	if s.tokenMatches(r.URL.Query().Get("token")) {
		return true
	}
	if s.tokenMatches(r.Header.Get(tokenHeader)) {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && s.tokenMatches(strings.TrimPrefix(auth, "Bearer "))
}

func (s *Server) tokenMatches(got string) bool {
	return got != "" && subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.AuthToken)) == 1
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	host := parsed.Host
	if host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
