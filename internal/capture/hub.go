package capture

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rolvdeihai/rtsp-stream-viewer/internal/config"
	"github.com/rolvdeihai/rtsp-stream-viewer/internal/metrics"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrSourceFailed is passed to subscribers when a feed gives up after too
// many consecutive capture failures.
var ErrSourceFailed = errors.New("capture: source failed")

// ErrHubClosed is returned by Subscribe after Close.
var ErrHubClosed = errors.New("capture: hub closed")

// Subscriber receives a feed's frames. Send must not block; it reports
// whether an unsent older frame was replaced. Close is called once when the
// feed ends on its own.
type Subscriber interface {
	Send(payload []byte) (replaced bool)
	Close(reason error)
}

// FeedStats is a point-in-time view of one feed for /healthz.
type FeedStats struct {
	Source        string    `json:"source"`
	Subscribers   int       `json:"subscribers"`
	FPS           float64   `json:"fps"`
	Quality       int       `json:"quality"`
	Frames        uint64    `json:"frames"`
	Dropped       uint64    `json:"dropped"`
	Skipped       uint64    `json:"skipped"`
	Health        Health    `json:"health"`
	Failures      int       `json:"consecutive_failures"`
	TotalFailures int       `json:"total_failures"`
	LastError     string    `json:"last_error,omitempty"`
	Since         time.Time `json:"since"`
}

// Hub shares one capture per source URL between all its subscribers. The
// first subscriber opens the source; the last one to leave closes it.
type Hub struct {
	cfg     config.CaptureConfig
	open    Opener
	log     *zap.Logger
	metrics *metrics.Server

	mu     sync.Mutex
	feeds  map[string]*Feed
	nextID uint64
	closed bool
}

// NewHub creates a Hub. log and m may be nil.
func NewHub(cfg config.CaptureConfig, open Opener, log *zap.Logger, m *metrics.Server) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewServer()
	}
	return &Hub{
		cfg:     cfg,
		open:    open,
		log:     log,
		metrics: m,
		feeds:   make(map[string]*Feed),
	}
}

// Subscribe attaches sub to the feed for source, opening the source if no
// feed exists. An error means the source could not be opened. The returned
// func detaches sub and is safe to call more than once.
func (h *Hub) Subscribe(source string, sub Subscriber) (func(), error) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	if f, ok := h.feeds[source]; ok {
		id := h.addLocked(f, sub)
		h.mu.Unlock()
		return h.unsubscriber(f, id), nil
	}
	h.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	src, err := h.open(ctx, source)
	if err != nil {
		cancel()
		return nil, err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		cancel()
		src.Close()
		return nil, ErrHubClosed
	}
	if f, ok := h.feeds[source]; ok {
		// Lost a race with another first subscriber.
		id := h.addLocked(f, sub)
		h.mu.Unlock()
		cancel()
		src.Close()
		return h.unsubscriber(f, id), nil
	}
	f := newFeed(h, source, src, cancel)
	h.feeds[source] = f
	id := h.addLocked(f, sub)
	h.mu.Unlock()

	h.metrics.ActiveFeeds.Inc()
	h.log.Info("feed started", zap.String("source", source))
	go f.run(ctx)
	return h.unsubscriber(f, id), nil
}

func (h *Hub) addLocked(f *Feed, sub Subscriber) uint64 {
	h.nextID++
	f.mu.Lock()
	f.subs[h.nextID] = sub
	f.mu.Unlock()
	return h.nextID
}

func (h *Hub) unsubscriber(f *Feed, id uint64) func() {
	var once sync.Once
	return func() {
		once.Do(func() { h.unsubscribe(f, id) })
	}
}

func (h *Hub) unsubscribe(f *Feed, id uint64) {
	h.mu.Lock()
	f.mu.Lock()
	delete(f.subs, id)
	empty := len(f.subs) == 0
	f.mu.Unlock()
	last := empty && h.feeds[f.source] == f
	if last {
		delete(h.feeds, f.source)
	}
	h.mu.Unlock()

	if last {
		f.stop()
		h.metrics.ActiveFeeds.Dec()
		h.log.Info("feed stopped", zap.String("source", f.source))
	}
}

// fail ends a feed whose source gave up and disconnects its subscribers.
func (h *Hub) fail(f *Feed, reason error) {
	h.mu.Lock()
	registered := h.feeds[f.source] == f
	if registered {
		delete(h.feeds, f.source)
	}
	h.mu.Unlock()
	if registered {
		h.metrics.ActiveFeeds.Dec()
	}

	for _, sub := range f.takeSubs() {
		sub.Close(reason)
	}
}

// Stats returns one entry per running feed, sorted by source.
func (h *Hub) Stats() []FeedStats {
	h.mu.Lock()
	feeds := make([]*Feed, 0, len(h.feeds))
	for _, f := range h.feeds {
		feeds = append(feeds, f)
	}
	h.mu.Unlock()

	out := make([]FeedStats, 0, len(feeds))
	for _, f := range feeds {
		out = append(out, f.stats())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

// Close stops every feed and disconnects all subscribers.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	feeds := h.feeds
	h.feeds = make(map[string]*Feed)
	h.mu.Unlock()

	for _, f := range feeds {
		f.stop()
		h.metrics.ActiveFeeds.Dec()
		for _, sub := range f.takeSubs() {
			sub.Close(ErrHubClosed)
		}
	}
}

// Feed is the running capture of one source.
type Feed struct {
	hub    *Hub
	source string
	src    Source
	log    *zap.Logger
	cancel context.CancelFunc
	done   chan struct{}
	health *feedHealth
	since  time.Time

	mu      sync.Mutex
	subs    map[uint64]Subscriber
	quality int
	fps     float64
	frames  uint64
	dropped uint64
	skipped uint64
}

func newFeed(h *Hub, source string, src Source, cancel context.CancelFunc) *Feed {
	return &Feed{
		hub:     h,
		source:  source,
		src:     src,
		log:     h.log.With(zap.String("source", source)),
		cancel:  cancel,
		done:    make(chan struct{}),
		health:  newFeedHealth(h.cfg.MaxFailures),
		since:   time.Now(),
		subs:    make(map[uint64]Subscriber),
		quality: h.cfg.Quality,
	}
}

func (f *Feed) run(ctx context.Context) {
	defer close(f.done)
	defer f.src.Close()

	cfg := f.hub.cfg
	m := f.hub.metrics
	next := f.src.Next
	if isLive(f.src) {
		g := newGrabber(f.src, cfg.RetryDelay, func() {
			f.mu.Lock()
			f.skipped++
			f.mu.Unlock()
			m.FramesSkipped.WithLabelValues(f.source).Inc()
		})
		go g.run(ctx)
		// The source is closed only after the reader has stopped.
		defer g.wait()
		next = g.Next
	}
	defer f.cancel()

	limiter := rate.NewLimiter(rate.Limit(cfg.TargetFPS), 1)
	policy := QualityPolicy{TargetFPS: cfg.TargetFPS, Min: cfg.MinQuality, Max: cfg.MaxQuality, Step: cfg.QualityStep}
	enc := Encoder{Scale: cfg.ScaleFactor}
	m.Quality.WithLabelValues(f.source).Set(float64(cfg.Quality))

	windowStart := time.Now()
	windowFrames := 0
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}

		img, err := next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			n := f.health.recordFailure(err)
			m.CaptureFailures.WithLabelValues(f.source).Inc()
			f.log.Warn("capture failed", zap.Error(err), zap.Int("consecutive", n))
			if n >= cfg.MaxFailures {
				f.log.Error("source failed, disconnecting viewers", zap.Int("failures", n))
				f.hub.fail(f, fmt.Errorf("%w: %v", ErrSourceFailed, err))
				return
			}
			select {
			case <-time.After(cfg.RetryDelay):
			case <-ctx.Done():
				return
			}
			continue
		}
		f.health.recordSuccess()

		payload, err := enc.Encode(img, f.currentQuality())
		if err != nil {
			f.log.Warn("encode failed", zap.Error(err))
			continue
		}
		m.FramesCaptured.WithLabelValues(f.source).Inc()
		m.FrameSize.Observe(float64(len(payload)))
		f.broadcast(payload)

		windowFrames++
		if elapsed := time.Since(windowStart); elapsed >= cfg.AdjustInterval {
			f.adjust(float64(windowFrames)/elapsed.Seconds(), policy)
			windowStart = time.Now()
			windowFrames = 0
		}
	}
}

func (f *Feed) broadcast(payload []byte) {
	f.mu.Lock()
	subs := make([]Subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		subs = append(subs, s)
	}
	f.frames++
	f.mu.Unlock()

	var dropped uint64
	for _, s := range subs {
		if s.Send(payload) {
			dropped++
		}
	}
	if dropped > 0 {
		f.mu.Lock()
		f.dropped += dropped
		f.mu.Unlock()
		f.hub.metrics.FramesDropped.Add(float64(dropped))
	}
}

func (f *Feed) adjust(fps float64, policy QualityPolicy) {
	f.mu.Lock()
	old := f.quality
	f.fps = fps
	f.quality = policy.Next(old, fps)
	q := f.quality
	f.mu.Unlock()

	if q != old {
		f.log.Debug("quality adjusted", zap.Int("from", old), zap.Int("to", q), zap.Float64("fps", fps))
		f.hub.metrics.Quality.WithLabelValues(f.source).Set(float64(q))
	}
}

func (f *Feed) currentQuality() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.quality
}

func (f *Feed) takeSubs() []Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Subscriber, 0, len(f.subs))
	for _, s := range f.subs {
		out = append(out, s)
	}
	f.subs = make(map[uint64]Subscriber)
	return out
}

func (f *Feed) stop() {
	f.cancel()
	<-f.done
}

func (f *Feed) stats() FeedStats {
	status, failures, total, lastErr := f.health.snapshot()
	f.mu.Lock()
	defer f.mu.Unlock()
	return FeedStats{
		Source:        f.source,
		Subscribers:   len(f.subs),
		FPS:           f.fps,
		Quality:       f.quality,
		Frames:        f.frames,
		Dropped:       f.dropped,
		Skipped:       f.skipped,
		Health:        status,
		Failures:      failures,
		TotalFailures: total,
		LastError:     lastErr,
		Since:         f.since,
	}
}
